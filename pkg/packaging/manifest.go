package packaging

import (
	"fmt"

	"github.com/beevik/etree"

	"github.com/janhelge/efm-integrasjonspunkt/pkg/envelope"
)

// Manifest element and attribute names
const (
	manifestNamespace = "urn:no:difi:meldingsutveksling:2.0"
	manifestFilename  = "manifest.xml"

	roleMainDocument = "hoveddokument"
	roleAttachment   = "vedlegg"
)

// ManifestEntry describes one file listed in the manifest
type ManifestEntry struct {
	Href string
	Mime string
	Role string
}

// BuildManifest renders the manifest for the given envelope and files.
// Files appear in submission order; the first file is the main document,
// the rest are attachments. The rendering is deterministic so packaging the
// same inputs twice yields byte-identical manifests.
func BuildManifest(env *envelope.Envelope, files []File) ([]byte, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("no files to list in manifest")
	}

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	root := doc.CreateElement("manifest")
	root.CreateAttr("xmlns", manifestNamespace)

	receiver := root.CreateElement("mottaker")
	receiver.CreateElement("organisasjonsnummer").SetText(env.ReceiverID)

	sender := root.CreateElement("avsender")
	sender.CreateElement("organisasjonsnummer").SetText(env.SenderID)

	for i, f := range files {
		role := roleAttachment
		if i == 0 {
			role = roleMainDocument
		}
		entry := root.CreateElement(role)
		entry.CreateAttr("href", f.Name)
		entry.CreateAttr("mime", f.MimeType)
	}

	doc.Indent(2)
	return doc.WriteToBytes()
}

// ParseManifest reads back the entries of a rendered manifest, in document
// order. Used on the receiving side and for verification.
func ParseManifest(data []byte) ([]ManifestEntry, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	root := doc.Root()
	if root == nil || root.Tag != "manifest" {
		return nil, fmt.Errorf("document is not a manifest")
	}

	var entries []ManifestEntry
	for _, child := range root.ChildElements() {
		if child.Tag != roleMainDocument && child.Tag != roleAttachment {
			continue
		}
		href := child.SelectAttrValue("href", "")
		if href == "" {
			return nil, fmt.Errorf("%s entry without href", child.Tag)
		}
		entries = append(entries, ManifestEntry{
			Href: href,
			Mime: child.SelectAttrValue("mime", ""),
			Role: child.Tag,
		})
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("manifest lists no files")
	}
	return entries, nil
}
