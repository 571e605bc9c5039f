package features

import "bytes"

// FormatNone is the categorical value reported when no signature matches.
const FormatNone = "none"

// Signature is a single magic-number entry: a format name and the leading
// bytes that identify it.
type Signature struct {
	Name  string
	Magic []byte
}

// SignatureTable is an ordered list of signatures. Detection returns the
// first match in table order, so the ordering is part of the contract.
type SignatureTable []Signature

// DefaultSignatures returns the built-in signature table covering the
// container formats the extractor knows how to discriminate: the two
// dominant executable formats, documents, archives and common images.
func DefaultSignatures() SignatureTable {
	return SignatureTable{
		{Name: "pe", Magic: []byte{'M', 'Z'}},
		{Name: "elf", Magic: []byte{0x7f, 'E', 'L', 'F'}},
		{Name: "pdf", Magic: []byte{'%', 'P', 'D', 'F'}},
		{Name: "zip", Magic: []byte{'P', 'K', 0x03, 0x04}},
		// Empty and spanned archives carry different third and fourth
		// bytes but are still zip containers.
		{Name: "zip", Magic: []byte{'P', 'K', 0x05, 0x06}},
		{Name: "zip", Magic: []byte{'P', 'K', 0x07, 0x08}},
		{Name: "gzip", Magic: []byte{0x1f, 0x8b}},
		{Name: "png", Magic: []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}},
		{Name: "jpeg", Magic: []byte{0xff, 0xd8, 0xff}},
		{Name: "gif", Magic: []byte{'G', 'I', 'F'}},
	}
}

// Detect returns the name of the first signature whose magic bytes prefix
// buf, or FormatNone when nothing matches. Detection depends only on the
// leading bytes of the buffer.
func (t SignatureTable) Detect(buf []byte) string {
	for _, sig := range t {
		if bytes.HasPrefix(buf, sig.Magic) {
			return sig.Name
		}
	}
	return FormatNone
}
