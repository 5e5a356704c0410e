package packaging

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"fmt"

	"github.com/beevik/etree"
	"github.com/leifj/signedxml"
)

// XML signature algorithm URIs
const (
	AlgorithmRSASHA256   = "http://www.w3.org/2001/04/xmldsig-more#rsa-sha256"
	AlgorithmECDSASHA256 = "http://www.w3.org/2001/04/xmldsig-more#ecdsa-sha256"
	AlgorithmEd25519     = "http://www.w3.org/2021/04/xmldsig-more#eddsa-ed25519"
	AlgorithmSHA256    = "http://www.w3.org/2001/04/xmlenc#sha256"
	AlgorithmC14N      = "http://www.w3.org/2001/10/xml-exc-c14n#"

	signatureFilename = "META-INF/signatures.xml"
)

// signedFile pairs a container path with its content for digesting
type signedFile struct {
	name    string
	content []byte
}

// buildSignature produces the detached signature document covering the
// manifest and every payload file. References are detached (URI is the
// container path), digests are SHA-256, and SignedInfo is canonicalized
// with exclusive C14N before signing.
func buildSignature(signer Signer, files []signedFile) ([]byte, error) {
	if signer == nil {
		return nil, fmt.Errorf("no signer configured")
	}
	cert := signer.Certificate()
	if cert == nil {
		return nil, fmt.Errorf("signer has no certificate")
	}

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	sig := doc.CreateElement("ds:Signature")
	sig.CreateAttr("xmlns:ds", "http://www.w3.org/2000/09/xmldsig#")

	signedInfo := sig.CreateElement("ds:SignedInfo")
	// Exclusive C14N requires the namespace declaration on the element itself
	signedInfo.CreateAttr("xmlns:ds", "http://www.w3.org/2000/09/xmldsig#")

	c14nMethod := signedInfo.CreateElement("ds:CanonicalizationMethod")
	c14nMethod.CreateAttr("Algorithm", AlgorithmC14N)

	sigMethod := signedInfo.CreateElement("ds:SignatureMethod")
	sigMethod.CreateAttr("Algorithm", signer.Algorithm())

	for _, f := range files {
		digest := sha256.Sum256(f.content)

		ref := signedInfo.CreateElement("ds:Reference")
		ref.CreateAttr("URI", f.name)

		digestMethod := ref.CreateElement("ds:DigestMethod")
		digestMethod.CreateAttr("Algorithm", AlgorithmSHA256)

		digestValue := ref.CreateElement("ds:DigestValue")
		digestValue.SetText(base64.StdEncoding.EncodeToString(digest[:]))
	}

	canonical, err := canonicalizeSignedInfo(signedInfo)
	if err != nil {
		return nil, err
	}

	signature, err := signDigest(signer, canonical)
	if err != nil {
		return nil, err
	}

	sigValue := sig.CreateElement("ds:SignatureValue")
	sigValue.SetText(base64.StdEncoding.EncodeToString(signature))

	keyInfo := sig.CreateElement("ds:KeyInfo")
	x509Data := keyInfo.CreateElement("ds:X509Data")
	x509Cert := x509Data.CreateElement("ds:X509Certificate")
	x509Cert.SetText(base64.StdEncoding.EncodeToString(cert.Raw))

	doc.Indent(2)
	return doc.WriteToBytes()
}

// verifySignature checks the detached signature against the supplied files
// and the given certificate. Every reference in the signature must match a
// file, and every file must be referenced.
func verifySignature(signatureXML []byte, files []signedFile, cert *x509.Certificate) error {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(signatureXML); err != nil {
		return fmt.Errorf("parsing signature document: %w", err)
	}

	signedInfo := doc.FindElement("//*[local-name()='SignedInfo']")
	if signedInfo == nil {
		return fmt.Errorf("signature document has no SignedInfo")
	}

	byName := make(map[string][]byte, len(files))
	for _, f := range files {
		byName[f.name] = f.content
	}

	refs := signedInfo.FindElements("./*[local-name()='Reference']")
	if len(refs) != len(files) {
		return fmt.Errorf("signature covers %d files, container holds %d", len(refs), len(files))
	}
	for _, ref := range refs {
		uri := ref.SelectAttrValue("URI", "")
		content, ok := byName[uri]
		if !ok {
			return fmt.Errorf("signature references unknown file %q", uri)
		}

		digestElem := ref.FindElement("./*[local-name()='DigestValue']")
		if digestElem == nil {
			return fmt.Errorf("reference %q has no digest", uri)
		}
		want, err := base64.StdEncoding.DecodeString(digestElem.Text())
		if err != nil {
			return fmt.Errorf("reference %q digest is not base64: %w", uri, err)
		}
		got := sha256.Sum256(content)
		if string(want) != string(got[:]) {
			return fmt.Errorf("digest mismatch for %q", uri)
		}
	}

	sigValueElem := doc.FindElement("//*[local-name()='SignatureValue']")
	if sigValueElem == nil {
		return fmt.Errorf("signature document has no SignatureValue")
	}
	signature, err := base64.StdEncoding.DecodeString(sigValueElem.Text())
	if err != nil {
		return fmt.Errorf("signature value is not base64: %w", err)
	}

	canonical, err := canonicalizeSignedInfo(signedInfo)
	if err != nil {
		return err
	}

	switch pub := cert.PublicKey.(type) {
	case *rsa.PublicKey:
		digest := sha256.Sum256(canonical)
		if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], signature); err != nil {
			return fmt.Errorf("RSA signature verification failed: %w", err)
		}
	case *ecdsa.PublicKey:
		digest := sha256.Sum256(canonical)
		if !ecdsa.VerifyASN1(pub, digest[:], signature) {
			return fmt.Errorf("ECDSA signature verification failed")
		}
	case ed25519.PublicKey:
		if !ed25519.Verify(pub, canonical, signature) {
			return fmt.Errorf("Ed25519 signature verification failed")
		}
	default:
		return fmt.Errorf("unsupported public key type %T", pub)
	}
	return nil
}

// canonicalizeSignedInfo applies exclusive C14N to the SignedInfo element
func canonicalizeSignedInfo(signedInfo *etree.Element) ([]byte, error) {
	canonicalizer := signedxml.ExclusiveCanonicalization{WithComments: false}
	canonical, err := canonicalizer.ProcessElement(signedInfo, "")
	if err != nil {
		return nil, fmt.Errorf("canonicalizing SignedInfo: %w", err)
	}
	return []byte(canonical), nil
}

// signDigest dispatches to the key-appropriate signing primitive.
// Ed25519 signs the canonical bytes directly; RSA and ECDSA sign the
// SHA-256 digest.
func signDigest(signer Signer, canonical []byte) ([]byte, error) {
	switch signer.Algorithm() {
	case AlgorithmEd25519:
		return signer.Sign(rand.Reader, canonical, crypto.Hash(0))
	case AlgorithmRSASHA256, AlgorithmECDSASHA256:
		digest := sha256.Sum256(canonical)
		return signer.Sign(rand.Reader, digest[:], crypto.SHA256)
	default:
		return nil, fmt.Errorf("unsupported signature algorithm %q", signer.Algorithm())
	}
}
