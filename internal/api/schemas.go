package api

import (
	"net/http"

	"simlink/pkg/schema"
)

// SchemaLister lists registered data definitions.
// *session.Session satisfies it.
type SchemaLister interface {
	Schemas() []schema.Schema
}

type SchemaHandler struct {
	schemas SchemaLister
}

func NewSchemaHandler(schemas SchemaLister) *SchemaHandler {
	return &SchemaHandler{schemas: schemas}
}

func (h *SchemaHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	list := h.schemas.Schemas()
	if list == nil {
		list = []schema.Schema{}
	}
	writeJSON(w, list)
}
