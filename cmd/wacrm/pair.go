package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/mdp/qrterminal/v3"
	"github.com/spf13/cobra"
	"github.com/talkincode/wacrm/config"
	"github.com/talkincode/wacrm/internal/whatsapp"
)

// newPairCmd links a tenant device from the terminal, without the http api.
func newPairCmd(cfgFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "pair <tenant>",
		Short: "Pair a tenant device by scanning a QR code in the terminal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(*cfgFile)
			if err != nil {
				return err
			}
			svc, err := whatsapp.New(cfg)
			if err != nil {
				return err
			}
			defer svc.Close()

			out := cmd.OutOrStdout()
			done := make(chan error, 1)
			finish := func(err error) {
				select {
				case done <- err:
				default:
				}
			}
			handler := func(evt whatsapp.Event) {
				switch e := evt.(type) {
				case whatsapp.QRCode:
					fmt.Fprintln(out, "QR code received - scan with WhatsApp:")
					qrterminal.GenerateHalfBlock(e.Code, qrterminal.L, out)
				case whatsapp.LoggedIn:
					fmt.Fprintln(out, "Logged in. JID:", e.JID)
					finish(nil)
				case whatsapp.AuthFailure:
					finish(fmt.Errorf("pairing failed: %s", e.Reason))
				case whatsapp.Disconnected:
					finish(fmt.Errorf("disconnected: %s", e.Reason))
				}
			}

			ctx := context.Background()
			client, err := svc.NewClient(ctx, args[0], handler)
			if err != nil {
				return err
			}
			defer client.Disconnect()
			if err := client.Connect(ctx); err != nil {
				return err
			}

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt)
			select {
			case err := <-done:
				return err
			case <-sig:
				fmt.Fprintln(out, "disconnecting...")
				return nil
			}
		},
	}
}
