package domain

var Tables = []interface{}{
	// WhatsApp
	&WhatsAppQRCode{},
	&CRMRecord{},
}
