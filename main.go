package main

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/sistemia/go-sifen/png"
	"github.com/sistemia/go-sifen/sifen"
	"github.com/sistemia/go-sifen/sifen/cdc"
	"github.com/sistemia/go-sifen/sifen/document"
	"github.com/sistemia/go-sifen/sifen/service"
	"github.com/sistemia/go-sifen/sifen/util"
)

func main() {

	if util.DebugEnabled() {
		logrus.SetLevel(logrus.DebugLevel)
	}

	var env sifen.Environment
	if err := env.UnmarshalText([]byte(util.GetEnvOrDefault("SIFEN_ENV", "test"))); err != nil {
		panic(err)
	}

	cfg, err := sifen.NewConfig(env)
	if err != nil {
		panic(err)
	}
	cfg.CertPath = util.GetEnvOrFailed("SIFEN_CERT")
	cfg.KeyPath = util.GetEnvOrFailed("SIFEN_KEY")
	cfg.KeyPassphrase = util.GetEnvOrDefault("SIFEN_KEY_PASS", "")
	cfg.CSC = util.GetEnvOrFailed("SIFEN_CSC")
	cfg.IdCSC = util.GetEnvOrDefault("SIFEN_CSC_ID", "1")

	svc, err := service.New(cfg)
	if err != nil {
		panic(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	rec, payload, err := svc.Send(ctx, sampleInvoice())
	if err != nil {
		fmt.Println("submission failed:", err)
	}
	if rec != nil {
		fmt.Println("status:", rec.Status)
		fmt.Println("cdc:   ", cdc.Format(rec.ControlCode))
	}
	if payload != nil {
		fmt.Println("qr:    ", payload.QRURL)
		if err := png.WriteFile("qr.png", payload); err != nil {
			fmt.Println("qr png:", err)
		}
	}
}

func sampleInvoice() document.Snapshot {
	dec := decimal.NewFromInt
	return document.Snapshot{
		Type: document.TypeInvoice,
		Emitter: document.Emitter{
			RUC:           util.GetEnvOrFailed("SIFEN_RUC"),
			RUCDigit:      util.GetEnvOrFailed("SIFEN_RUC_DV"),
			Name:          util.GetEnvOrDefault("SIFEN_NAME", "Demo S.A."),
			Address:       "Asunción",
			Establishment: "1",
			PointOfSale:   "1",
			StampNumber:   util.GetEnvOrFailed("SIFEN_TIMBRADO"),
		},
		Sequence:  util.GetEnvOrDefault("SIFEN_SEQ", "1"),
		IssueTime: time.Now(),
		Receiver:  document.Receiver{Kind: document.ReceiverAnonymous},
		Items: []document.LineItem{
			{Code: "DEMO", Description: "Servicio de prueba", Quantity: dec(1), UnitPrice: dec(110000), Tax: document.TaxRate10},
		},
		TotalTax10: dec(10000),
		Total:      dec(110000),
	}
}
