package epub

import (
	"strings"

	"github.com/shelvr/shelvr/pkg/errcodes"
)

// ContainerPath is the fixed location of the container descriptor.
const ContainerPath = "META-INF/container.xml"

// LocatePackageDocument reads the container descriptor and returns the
// archive path of the first rootfile it declares.
func LocatePackageDocument(a *Archive) (string, error) {
	doc, err := a.ReadText(ContainerPath)
	if err != nil {
		return "", errcodes.Wrap(errcodes.CodeMissingContainer, err, ContainerPath)
	}

	for _, rf := range findElements(doc, "rootfile") {
		if p := strings.TrimSpace(rf.attr("full-path")); p != "" {
			return strings.TrimPrefix(p, "/"), nil
		}
	}
	return "", errcodes.New(errcodes.CodeMissingContainer, "no rootfile with full-path in "+ContainerPath)
}
