package document

import (
	"github.com/beevik/etree"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/sistemia/go-sifen/sifen/cdc"
)

// Namespace of every electronic document and envelope body.
const Namespace = "http://ekuatia.set.gov.py/sifen/xsd"

// FormatVersion is the dVerFor schema version.
const FormatVersion = "150"

// QRPlaceholder sits in dCarQR until the signature digest exists. It is
// outside the DE element, so replacing it never touches the signed bytes.
const QRPlaceholder = "qr-pending"

const timeLayout = "2006-01-02T15:04:05"

// BuildTree serializes the document to its rDE element tree. The dCarQR
// carrier holds QRPlaceholder; the signature step fills it in.
func BuildTree(doc *Document) (*etree.Document, error) {
	if doc.ControlCode == "" {
		return nil, errors.New("document has no control code")
	}
	info, err := cdc.Parse(doc.ControlCode)
	if err != nil {
		return nil, errors.Wrap(err, "parse control code")
	}

	tree := etree.NewDocument()
	rde := tree.CreateElement("rDE")
	rde.CreateAttr("xmlns", Namespace)
	rde.CreateAttr("xmlns:xsi", "http://www.w3.org/2001/XMLSchema-instance")
	rde.CreateAttr("xsi:schemaLocation", Namespace+" siRecepDE_v150.xsd")
	rde.CreateElement("dVerFor").SetText(FormatVersion)

	de := rde.CreateElement("DE")
	de.CreateAttr("Id", doc.ControlCode)
	de.CreateElement("dDVId").SetText(info.CheckDigit)
	de.CreateElement("dFecFirma").SetText(doc.IssueTime.Format(timeLayout))
	de.CreateElement("dSisFact").SetText("1")

	writeOperation(de, doc, info)
	writeStamp(de, doc, info)
	writeGeneralData(de, doc)
	writeSpecificType(de, doc)
	writeTotals(de, doc)

	fufd := rde.CreateElement("gCamFuFD")
	fufd.CreateElement("dCarQR").SetText(QRPlaceholder)

	return tree, nil
}

func writeOperation(de *etree.Element, doc *Document, info *cdc.Info) {
	op := de.CreateElement("gOpeDE")
	op.CreateElement("iTipEmi").SetText(doc.EmissionMode)
	op.CreateElement("dDesTipEmi").SetText(emissionModeLabel(doc.EmissionMode))
	op.CreateElement("dCodSeg").SetText(info.SecurityCode)
}

func writeStamp(de *etree.Element, doc *Document, info *cdc.Info) {
	st := de.CreateElement("gTimb")
	st.CreateElement("iTiDE").SetText(trimLeadingZero(doc.Type))
	st.CreateElement("dDesTiDE").SetText(docTypeLabel(doc.Type))
	st.CreateElement("dNumTim").SetText(doc.Emitter.StampNumber)
	st.CreateElement("dEst").SetText(info.Establishment)
	st.CreateElement("dPunExp").SetText(info.PointOfSale)
	st.CreateElement("dNumDoc").SetText(info.Sequence)
	if !doc.Emitter.StampBegin.IsZero() {
		st.CreateElement("dFeIniT").SetText(doc.Emitter.StampBegin.Format("2006-01-02"))
	}
}

func writeGeneralData(de *etree.Element, doc *Document) {
	gd := de.CreateElement("gDatGralOpe")
	gd.CreateElement("dFeEmiDE").SetText(doc.IssueTime.Format(timeLayout))

	com := gd.CreateElement("gOpeCom")
	com.CreateElement("iTipTra").SetText("1")
	com.CreateElement("dDesTipTra").SetText("Venta de mercadería")
	com.CreateElement("iTImp").SetText("1")
	com.CreateElement("dDesTImp").SetText("IVA")
	com.CreateElement("cMoneOpe").SetText(doc.Currency)
	com.CreateElement("dDesMoneOpe").SetText(currencyLabel(doc.Currency))

	em := gd.CreateElement("gEmis")
	em.CreateElement("dRucEm").SetText(cdc.DigitsOnly(doc.Emitter.RUC))
	em.CreateElement("dDVEmi").SetText(doc.Emitter.RUCDigit)
	em.CreateElement("iTipCont").SetText("2")
	em.CreateElement("dNomEmi").SetText(doc.Emitter.Name)
	em.CreateElement("dDirEmi").SetText(doc.Emitter.Address)
	em.CreateElement("dNumCas").SetText("0")

	writeReceiver(gd, doc.Receiver)
}

func writeReceiver(gd *etree.Element, r Receiver) {
	rec := gd.CreateElement("gDatRec")
	rec.CreateElement("cPaisRec").SetText("PRY")
	rec.CreateElement("dDesPaisRe").SetText("Paraguay")
	switch r.Kind {
	case ReceiverRUC:
		rec.CreateElement("iNatRec").SetText("1")
		rec.CreateElement("iTiOpe").SetText("1")
		rec.CreateElement("iTiContRec").SetText("2")
		rec.CreateElement("dRucRec").SetText(cdc.DigitsOnly(r.RUC))
		rec.CreateElement("dDVRec").SetText(r.RUCDigit)
		rec.CreateElement("dNomRec").SetText(r.Name)
	case ReceiverNaturalID:
		rec.CreateElement("iNatRec").SetText("2")
		rec.CreateElement("iTiOpe").SetText("2")
		rec.CreateElement("iTipIDRec").SetText("1")
		rec.CreateElement("dDTipIDRec").SetText("Cédula paraguaya")
		rec.CreateElement("dNumIDRec").SetText(r.DocumentID)
		rec.CreateElement("dNomRec").SetText(r.Name)
	case ReceiverAnonymous:
		// unnamed consumer: identity type 5, number 0
		rec.CreateElement("iNatRec").SetText("2")
		rec.CreateElement("iTiOpe").SetText("2")
		rec.CreateElement("iTipIDRec").SetText("5")
		rec.CreateElement("dDTipIDRec").SetText("Innominado")
		rec.CreateElement("dNumIDRec").SetText("0")
		rec.CreateElement("dNomRec").SetText("Sin Nombre")
	}
}

func writeSpecificType(de *etree.Element, doc *Document) {
	dt := de.CreateElement("gDtipDE")

	switch doc.Type {
	case TypeInvoice:
		fe := dt.CreateElement("gCamFE")
		fe.CreateElement("iIndPres").SetText("1")
		fe.CreateElement("dDesIndPres").SetText("Operación presencial")
	case TypeCreditNote:
		nc := dt.CreateElement("gCamNCDE")
		nc.CreateElement("iMotEmi").SetText(itoa(doc.Reference.ReasonCode))
		nc.CreateElement("dDesMotEmi").SetText(reasonLabel(doc.Reference.ReasonCode))
	}

	if doc.Type == TypeInvoice {
		writeCondition(dt, doc)
	}

	for _, li := range doc.Items {
		writeItem(dt, li)
	}

	if doc.Reference != nil && doc.Type == TypeCreditNote {
		asoc := dt.CreateElement("gCamDEAsoc")
		asoc.CreateElement("iTipDocAso").SetText("1")
		asoc.CreateElement("dCdCDERef").SetText(doc.Reference.ControlCode)
	}
}

func writeCondition(dt *etree.Element, doc *Document) {
	cond := dt.CreateElement("gCamCond")
	cond.CreateElement("iCondOpe").SetText("1")
	cond.CreateElement("dDCondOpe").SetText("Contado")
	payments := doc.Payments
	if len(payments) == 0 {
		payments = []PaymentMean{{TypeCode: "1", Description: "Efectivo", Amount: doc.Total, Currency: doc.Currency}}
	}
	for _, p := range payments {
		pe := cond.CreateElement("gPaConEIni")
		pe.CreateElement("iTiPago").SetText(p.TypeCode)
		pe.CreateElement("dDesTiPag").SetText(p.Description)
		pe.CreateElement("dMonTiPag").SetText(amount(p.Amount))
		cur := p.Currency
		if cur == "" {
			cur = doc.Currency
		}
		pe.CreateElement("cMoneTiPag").SetText(cur)
		pe.CreateElement("dDMoneTiPag").SetText(currencyLabel(cur))
	}
}

func writeItem(dt *etree.Element, li LineItem) {
	it := dt.CreateElement("gCamItem")
	it.CreateElement("dCodInt").SetText(li.Code)
	it.CreateElement("dDesProSer").SetText(li.Description)
	it.CreateElement("cUniMed").SetText("77")
	it.CreateElement("dDesUniMed").SetText("UNI")
	it.CreateElement("dCantProSer").SetText(amount(li.Quantity))

	sub := li.Subtotal()
	val := it.CreateElement("gValorItem")
	val.CreateElement("dPUniProSer").SetText(amount(li.UnitPrice))
	val.CreateElement("dTotBruOpeItem").SetText(amount(sub))
	rest := val.CreateElement("gValorRestaItem")
	rest.CreateElement("dDescItem").SetText("0")
	rest.CreateElement("dTotOpeItem").SetText(amount(sub))

	iva := it.CreateElement("gCamIVA")
	rate := li.Tax.Rate()
	if rate.IsZero() {
		iva.CreateElement("iAfecIVA").SetText("3")
		iva.CreateElement("dDesAfecIVA").SetText("Exento")
		iva.CreateElement("dPropIVA").SetText("0")
		iva.CreateElement("dTasaIVA").SetText("0")
		iva.CreateElement("dBasGravIVA").SetText("0")
		iva.CreateElement("dLiqIVAItem").SetText("0")
		iva.CreateElement("dBasExe").SetText(amount(sub))
	} else {
		tax := li.TaxAmount()
		iva.CreateElement("iAfecIVA").SetText("1")
		iva.CreateElement("dDesAfecIVA").SetText("Gravado IVA")
		iva.CreateElement("dPropIVA").SetText("100")
		iva.CreateElement("dTasaIVA").SetText(rate.String())
		iva.CreateElement("dBasGravIVA").SetText(amount(sub.Sub(tax)))
		iva.CreateElement("dLiqIVAItem").SetText(amount(tax))
		iva.CreateElement("dBasExe").SetText("0")
	}
}

func writeTotals(de *etree.Element, doc *Document) {
	var sub5, sub10 decimal.Decimal
	for _, li := range doc.Items {
		switch li.Tax {
		case TaxRate5:
			sub5 = sub5.Add(li.Subtotal())
		case TaxRate10:
			sub10 = sub10.Add(li.Subtotal())
		}
	}

	tot := de.CreateElement("gTotSub")
	tot.CreateElement("dSubExe").SetText(amount(doc.TotalExempt))
	tot.CreateElement("dSub5").SetText(amount(sub5))
	tot.CreateElement("dSub10").SetText(amount(sub10))
	tot.CreateElement("dTotOpe").SetText(amount(doc.Total))
	tot.CreateElement("dTotDesc").SetText("0")
	tot.CreateElement("dTotDescGlotem").SetText("0")
	tot.CreateElement("dTotAntItem").SetText("0")
	tot.CreateElement("dTotAnt").SetText("0")
	tot.CreateElement("dPorcDescTotal").SetText("0")
	tot.CreateElement("dDescTotal").SetText("0")
	tot.CreateElement("dAnticipo").SetText("0")
	tot.CreateElement("dRedon").SetText("0")
	tot.CreateElement("dTotGralOpe").SetText(amount(doc.Total))
	tot.CreateElement("dIVA5").SetText(amount(doc.TotalTax5))
	tot.CreateElement("dIVA10").SetText(amount(doc.TotalTax10))
	tot.CreateElement("dLiqTotIVA5").SetText("0")
	tot.CreateElement("dLiqTotIVA10").SetText("0")
	tot.CreateElement("dTotIVA").SetText(amount(doc.TotalTax()))
	tot.CreateElement("dBaseGrav5").SetText(amount(sub5.Sub(doc.TotalTax5)))
	tot.CreateElement("dBaseGrav10").SetText(amount(sub10.Sub(doc.TotalTax10)))
	tot.CreateElement("dTBasGraIVA").SetText(amount(sub5.Sub(doc.TotalTax5).Add(sub10.Sub(doc.TotalTax10))))
}

func amount(d decimal.Decimal) string { return d.String() }

func itoa(n int) string {
	return decimal.NewFromInt(int64(n)).String()
}

func trimLeadingZero(t string) string {
	if len(t) == 2 && t[0] == '0' {
		return t[1:]
	}
	return t
}

func docTypeLabel(t string) string {
	switch t {
	case TypeInvoice:
		return "Factura electrónica"
	case TypeCreditNote:
		return "Nota de crédito electrónica"
	}
	return ""
}

func emissionModeLabel(m string) string {
	switch m {
	case "1":
		return "Normal"
	case "2":
		return "Contingencia"
	}
	return ""
}

func currencyLabel(c string) string {
	switch c {
	case "PYG":
		return "Guarani"
	case "USD":
		return "US Dollar"
	}
	return c
}

func reasonLabel(code int) string {
	switch code {
	case 1:
		return "Devolución y Ajuste de precios"
	case 2:
		return "Devolución"
	case 3:
		return "Descuento"
	case 4:
		return "Bonificación"
	case 5:
		return "Crédito incobrable"
	case 6:
		return "Recupero de costo"
	case 7:
		return "Recupero de gasto"
	case 8:
		return "Ajuste de precio"
	}
	return "Ajuste"
}
