package logging

import (
	"log"
	"os"
)

var (
	BTCPay   = log.New(os.Stdout, "[btcpay] ", log.LstdFlags)
	Webhook  = log.New(os.Stdout, "[webhook] ", log.LstdFlags)
	Archive  = log.New(os.Stdout, "[archive] ", log.LstdFlags)
	Internal = log.New(os.Stdout, "[internal] ", log.LstdFlags)
	HTTP     = log.New(os.Stdout, "[http] ", log.LstdFlags)
)
