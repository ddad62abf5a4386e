package edhoc

// Export derives OSCORE_Master_Secret (16 bytes) and OSCORE_Master_Salt (8
// bytes) from PRK_4x3m and TH_4: the two outputs EDHOC hands to OSCORE's
// security-context derivation. The session must be Done.
func (s *Session) Export() (masterSecret, masterSalt []byte, err error) {
	if s.State != StateDone {
		return nil, nil, s.fail(newErr(CodeStateUnexpected, "Export called before EDHOC handshake completed"))
	}
	msInfo, err := buildInfo(s.Suite.AEAD, s.TH4, "OSCORE Master Secret", 16)
	if err != nil {
		return nil, nil, wrap(CodeCborFormat, err)
	}
	masterSecret, err = s.Backend.HKDFExpand(s.Suite.Hash, s.prk4x3m, msInfo, 16)
	if err != nil {
		return nil, nil, wrap(CodeHkdfExpandTooLarge, err)
	}
	saltInfo, err := buildInfo(s.Suite.AEAD, s.TH4, "OSCORE Master Salt", 8)
	if err != nil {
		return nil, nil, wrap(CodeCborFormat, err)
	}
	masterSalt, err = s.Backend.HKDFExpand(s.Suite.Hash, s.prk4x3m, saltInfo, 8)
	if err != nil {
		return nil, nil, wrap(CodeHkdfExpandTooLarge, err)
	}
	return masterSecret, masterSalt, nil
}
