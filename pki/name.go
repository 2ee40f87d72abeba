package pki

import (
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
	"strings"
)

// AttributeType names a distinguished name attribute by its short label.
type AttributeType string

const (
	Country            AttributeType = "C"
	Province           AttributeType = "ST"
	Locality           AttributeType = "L"
	Organization       AttributeType = "O"
	OrganizationalUnit AttributeType = "OU"
	CommonName         AttributeType = "CN"
)

var attributeOIDs = map[AttributeType]asn1.ObjectIdentifier{
	Country:            {2, 5, 4, 6},
	Province:           {2, 5, 4, 8},
	Locality:           {2, 5, 4, 7},
	Organization:       {2, 5, 4, 10},
	OrganizationalUnit: {2, 5, 4, 11},
	CommonName:         {2, 5, 4, 3},
}

// ParseAttributeType maps a short label ("C", "st", "CN", ...) to its AttributeType.
func ParseAttributeType(s string) (AttributeType, error) {
	t := AttributeType(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := attributeOIDs[t]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownAttribute, s)
	}
	return t, nil
}

// Attribute is one (type, value) pair of a distinguished name.
type Attribute struct {
	Type  AttributeType
	Value string
}

// DistinguishedName is an ordered attribute list. The order is kept in the
// encoded form because DN comparison and display are order-sensitive.
type DistinguishedName struct {
	attrs []Attribute
}

// BuildName assembles a DistinguishedName from attrs in the given order.
// Values must be non-empty and types must be known; nothing else is checked.
func BuildName(attrs ...Attribute) (DistinguishedName, error) {
	out := make([]Attribute, 0, len(attrs))
	for _, a := range attrs {
		if _, ok := attributeOIDs[a.Type]; !ok {
			return DistinguishedName{}, fmt.Errorf("%w: %q", ErrUnknownAttribute, a.Type)
		}
		if strings.TrimSpace(a.Value) == "" {
			return DistinguishedName{}, fmt.Errorf("%w: %s", ErrEmptyAttribute, a.Type)
		}
		out = append(out, a)
	}
	return DistinguishedName{attrs: out}, nil
}

// Attributes returns a copy of the attribute list.
func (n DistinguishedName) Attributes() []Attribute {
	return append([]Attribute(nil), n.attrs...)
}

// IsEmpty reports whether the name carries no attributes.
func (n DistinguishedName) IsEmpty() bool {
	return len(n.attrs) == 0
}

// CommonName returns the first CN value, or "".
func (n DistinguishedName) CommonName() string {
	for _, a := range n.attrs {
		if a.Type == CommonName {
			return a.Value
		}
	}
	return ""
}

// String renders the name in attribute order, e.g. "C=BR, ST=MG, CN=localhost".
func (n DistinguishedName) String() string {
	parts := make([]string, 0, len(n.attrs))
	for _, a := range n.attrs {
		parts = append(parts, string(a.Type)+"="+a.Value)
	}
	return strings.Join(parts, ", ")
}

// pkixName carries every attribute through ExtraNames, which x509 marshals
// in slice order after the (empty) standard fields.
func (n DistinguishedName) pkixName() pkix.Name {
	extra := make([]pkix.AttributeTypeAndValue, 0, len(n.attrs))
	for _, a := range n.attrs {
		extra = append(extra, pkix.AttributeTypeAndValue{Type: attributeOIDs[a.Type], Value: a.Value})
	}
	return pkix.Name{ExtraNames: extra}
}
