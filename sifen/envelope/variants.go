package envelope

// Variant is one envelope rendition of the same signed payload. The probe
// walks Variants in order when a submission keeps coming back as malformed;
// the production path never iterates, it always uses the first entry.
type Variant struct {
	Name string
	// Batch routes the variant to the asynchronous endpoint.
	Batch bool
	Build func(signedRDE []byte, dID string) ([]byte, error)
}

func syncVariant(name string, sh shell, o syncOptions) Variant {
	return Variant{
		Name: name,
		Build: func(signedRDE []byte, dID string) ([]byte, error) {
			return sh.wrap(syncBody(signedRDE, dID, o)), nil
		},
	}
}

// Variants returns the ordered registry. Order encodes suspicion: the
// accepted production form first, then prefix and declaration tweaks, then
// body reshapes, batch shapes last.
func Variants() []Variant {
	env := defaultShell
	noDecl := shell{Prefix: "env", NS: SOAP12NS, Header: true}
	noHeader := shell{Prefix: "env", NS: SOAP12NS, Declaration: true}
	soap := shell{Prefix: "soap", NS: SOAP12NS, Declaration: true, Header: true}
	soapEnv := shell{Prefix: "SOAP-ENV", NS: SOAP12NS, Declaration: true, Header: true}
	soap11 := shell{Prefix: "soap", NS: SOAP11NS, Declaration: true, Header: true}
	bare := shell{Prefix: "soap", NS: SOAP12NS}

	return []Variant{
		syncVariant("sync-default", env, syncOptions{}),
		syncVariant("sync-no-declaration", noDecl, syncOptions{}),
		syncVariant("sync-no-header", noHeader, syncOptions{}),
		syncVariant("sync-soap-prefix", soap, syncOptions{}),
		syncVariant("sync-soap-env-prefix", soapEnv, syncOptions{}),
		syncVariant("sync-soap11-namespace", soap11, syncOptions{}),
		syncVariant("sync-bare", bare, syncOptions{}),
		syncVariant("sync-cdata", env, syncOptions{cdata: true}),
		syncVariant("sync-stripped-namespace", env, syncOptions{stripNamespace: true}),
		syncVariant("sync-zipped", env, syncOptions{zipped: true}),
		{
			Name:  "batch-zip",
			Batch: true,
			Build: func(signedRDE []byte, dID string) ([]byte, error) {
				return Batch([][]byte{signedRDE}, dID, false)
			},
		},
		{
			Name:  "batch-gzip",
			Batch: true,
			Build: func(signedRDE []byte, dID string) ([]byte, error) {
				return Batch([][]byte{signedRDE}, dID, true)
			},
		},
	}
}
