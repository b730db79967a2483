package ports

import (
	"io"

	"github.com/AllenThomasDev/causal-webapp/domain/dataset"
)

// DatasetReader turns an uploaded table into a typed dataset.
// The name's extension selects the format.
type DatasetReader interface {
	Read(name string, r io.Reader) (*dataset.Dataset, error)
	ReadFile(path string) (*dataset.Dataset, error)
	ReadDataURL(name, dataURL string) (*dataset.Dataset, error)
}
