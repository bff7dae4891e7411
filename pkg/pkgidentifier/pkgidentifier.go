package pkgidentifier

import (
	"strings"

	"github.com/package-url/packageurl-go"
)

// Ecosystem of every package unsus scans.
var Ecosystem = packageurl.TypeNPM

type PkgIdentifier struct {
	Name    string
	Version string
}

func (pkg PkgIdentifier) String() string {
	if pkg.Version == "" {
		return pkg.Name
	}
	return pkg.Name + "@" + pkg.Version
}

// Scope splits a scoped npm name ("@scope/name") into its namespace and name.
// Unscoped names return an empty namespace.
func (pkg PkgIdentifier) Scope() (string, string) {
	if strings.HasPrefix(pkg.Name, "@") {
		if ns, name, ok := strings.Cut(pkg.Name, "/"); ok {
			return ns, name
		}
	}
	return "", pkg.Name
}

// PURL returns the package-url of the package, e.g. pkg:npm/%40scope/name@1.0.0.
func (pkg PkgIdentifier) PURL() string {
	if pkg.Name == "" {
		return ""
	}
	ns, name := pkg.Scope()
	return packageurl.NewPackageURL(Ecosystem, ns, name, pkg.Version, nil, "").ToString()
}

// FromPURL parses an npm package-url back into a PkgIdentifier.
func FromPURL(purl string) (PkgIdentifier, error) {
	p, err := packageurl.FromString(purl)
	if err != nil {
		return PkgIdentifier{}, err
	}
	name := p.Name
	if p.Namespace != "" {
		name = p.Namespace + "/" + p.Name
	}
	return PkgIdentifier{Name: name, Version: p.Version}, nil
}
