package bwapp

import (
	"github.com/advdv/bwire"
)

// Mux is an alias for bwire.ServeMux.
type Mux = bwire.ServeMux

// NewMux creates the application's route table.
func NewMux() *Mux {
	return bwire.NewServeMux()
}
