package envelope

import (
	"time"

	"github.com/beevik/etree"
	"github.com/go-faster/errors"

	"github.com/sistemia/go-sifen/sifen/sign"
)

// CancelParams describes one cancellation event.
type CancelParams struct {
	// EventID becomes the Id of the signed rEve element.
	EventID     string
	ControlCode string
	Reason      string
	SignedAt    time.Time
}

// CancelEvent builds and signs the cancellation event request. The signature
// covers the rEve element and sits next to it inside rGesEve; the event tree
// is serialized once and wrapped raw.
func CancelEvent(cred *sign.Credential, dID string, p CancelParams) ([]byte, error) {
	if p.EventID == "" || p.ControlCode == "" {
		return nil, errors.New("event id and control code are required")
	}
	if p.Reason == "" {
		return nil, errors.New("cancellation reason is required")
	}

	doc := etree.NewDocument()
	envio := doc.CreateElement("rEnviEventoDe")
	envio.CreateAttr("xmlns", SIFENNamespace)
	envio.CreateElement("dId").SetText(dID)
	reg := envio.CreateElement("dEvReg")
	group := reg.CreateElement("gGroupGesEve")
	ges := group.CreateElement("rGesEve")

	eve := ges.CreateElement("rEve")
	eve.CreateAttr("Id", p.EventID)
	eve.CreateElement("dFecFirma").SetText(p.SignedAt.Format("2006-01-02T15:04:05"))
	eve.CreateElement("dVerFor").SetText("150")
	evt := eve.CreateElement("gGroupTiEvt")
	can := evt.CreateElement("rGeVeCan")
	can.CreateElement("Id").SetText(p.ControlCode)
	can.CreateElement("mOtEve").SetText(p.Reason)

	sig, err := sign.EnvelopedSignature(cred, eve)
	if err != nil {
		return nil, errors.Wrap(err, "sign event")
	}
	ges.AddChild(sig)

	eventXML, err := doc.WriteToBytes()
	if err != nil {
		return nil, errors.Wrap(err, "write event tree")
	}
	logger.Debugf("cancellation event %s for %s", p.EventID, p.ControlCode)
	return defaultShell.wrap(string(eventXML)), nil
}
