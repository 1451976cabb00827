package raiox

import (
	"fmt"
	"net/url"
	"strings"

	"custeio/internal/core"
)

const (
	// DefaultBaseURL is the public Raio-X repository.
	DefaultBaseURL = "https://repositorio.dados.gov.br/seges/raio-x"
	// DefaultCSVFile is the archive entry holding the expense table.
	DefaultCSVFile = "custeio-administrativo.csv"

	filePrefix = "raiox"
)

// ArtifactName returns the archive file name for a month, e.g.
// raiox-2023-01.zip.
func ArtifactName(k core.MonthKey) string {
	return fmt.Sprintf("%s-%04d-%02d.zip", filePrefix, k.Year, k.Month)
}

// ArtifactURL joins base and the artifact name for k. The result depends
// only on its inputs.
func ArtifactURL(base string, k core.MonthKey) string {
	return strings.TrimRight(base, "/") + "/" + url.PathEscape(ArtifactName(k))
}
