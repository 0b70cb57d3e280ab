package storage

import (
	"path"

	"github.com/ruteri/certificate-manager/interfaces"
)

// contentDirs maps content types to the directory (or key prefix) holding
// them in every backend.
var contentDirs = map[interfaces.ContentType]string{
	interfaces.CertificateType:  "certificates",
	interfaces.NotificationType: "notifications",
}

// objectKey is the backend independent location of a content item:
// "<type dir>/<hex content id>".
func objectKey(id interfaces.ContentID, contentType interfaces.ContentType) string {
	dir, ok := contentDirs[contentType]
	if !ok {
		dir = "unknown"
	}
	return path.Join(dir, id.String())
}
