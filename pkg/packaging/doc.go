// Package packaging builds the signed, encrypted container for an outbound
// document exchange.
//
// The container follows the ASiC-E layout used by the Norwegian message
// exchange infrastructure:
//
//  1. A manifest enumerating the payload files in submission order, with
//     the first file marked as the main document.
//  2. A detached XML signature (META-INF/signatures.xml) covering the
//     manifest and every payload file.
//  3. A ZIP archive holding mimetype, manifest, signature and payloads.
//  4. The archive hybrid-encrypted for the receiver: a random AES-256-GCM
//     content key wrapped with RSA-OAEP against the receiver's enterprise
//     certificate, so payload size is bounded independently of the
//     asymmetric key size.
//  5. A SHA-256 checksum of the encrypted blob, used downstream for retry
//     deduplication and corruption detection.
//
// The packager has no side effects: it neither persists nor transmits.
// All faults are fatal for the attempt and surface as [*PackagingError],
// [*SigningError] or [*EncryptionError]; the caller decides whether
// re-packaging with a refreshed certificate is appropriate.
package packaging
