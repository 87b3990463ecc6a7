package server

import (
	"github.com/INLOpen/nexuslake/codec"
	"github.com/INLOpen/nexuslake/lake"
	"google.golang.org/protobuf/types/known/structpb"
)

// DocumentKeyField is the Struct field that holds a document's key.
const DocumentKeyField = "id"

// Document is the value type served over gRPC: a protobuf Struct keyed by its
// string "id" field.
type Document struct {
	Fields *structpb.Struct
}

// Key returns the document's "id" field, or "" when it is missing or not a
// string.
func (d Document) Key() string {
	return d.Fields.GetFields()[DocumentKeyField].GetStringValue()
}

// DocumentLake is a lake of documents keyed by id.
type DocumentLake = lake.Lake[string, Document]

// DocumentMarshaler stores a document as its protobuf Struct encoding.
type DocumentMarshaler struct{}

var structMarshaler = codec.ProtoMarshaler[*structpb.Struct]{
	New: func() *structpb.Struct { return &structpb.Struct{} },
}

func (DocumentMarshaler) Marshal(d Document) ([]byte, error) {
	if d.Fields == nil {
		return structMarshaler.Marshal(&structpb.Struct{})
	}
	return structMarshaler.Marshal(d.Fields)
}

func (DocumentMarshaler) Unmarshal(data []byte) (Document, error) {
	fields, err := structMarshaler.Unmarshal(data)
	if err != nil {
		return Document{}, err
	}
	return Document{Fields: fields}, nil
}

// NewDocument builds a document from a plain map. The map must hold only
// values structpb can represent.
func NewDocument(fields map[string]interface{}) (Document, error) {
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return Document{}, err
	}
	return Document{Fields: s}, nil
}
