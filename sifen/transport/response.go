package transport

import (
	"github.com/beevik/etree"
	"github.com/go-faster/errors"
)

// Response is a parsed SOAP reply. Field lookups tolerate whatever
// namespace prefixes the responding server picked; the same endpoint has
// been seen answering with ns2:, xsd: and no prefix at all.
type Response struct {
	HTTPStatus int
	Body       []byte

	tree *etree.Document
}

func ParseResponse(body []byte, httpStatus int) (*Response, error) {
	tree := etree.NewDocument()
	if err := tree.ReadFromBytes(body); err != nil {
		return nil, errors.Wrap(err, "parse response XML")
	}
	if tree.Root() == nil {
		return nil, errors.New("empty response document")
	}
	return &Response{HTTPStatus: httpStatus, Body: body, tree: tree}, nil
}

// Field returns the text of the first element with the given local tag name,
// regardless of namespace prefix or depth.
func (r *Response) Field(tag string) FieldValue {
	el := findByTag(r.tree.Root(), tag)
	if el == nil {
		return FieldValue{}
	}
	return FieldValue{present: true, value: el.Text()}
}

// Fields returns the texts of every element with the given local tag name,
// in document order.
func (r *Response) Fields(tag string) []string {
	var out []string
	collectByTag(r.tree.Root(), tag, &out)
	return out
}

// FieldValue distinguishes an absent element from a present-but-empty one.
type FieldValue struct {
	present bool
	value   string
}

func (v FieldValue) Present() bool { return v.present }

// Empty reports a present element with no text.
func (v FieldValue) Empty() bool { return v.present && v.value == "" }

func (v FieldValue) Value() string { return v.value }

// Or returns the value, or def when the element was absent or empty.
func (v FieldValue) Or(def string) string {
	if v.present && v.value != "" {
		return v.value
	}
	return def
}

func findByTag(el *etree.Element, tag string) *etree.Element {
	if el.Tag == tag {
		return el
	}
	for _, child := range el.ChildElements() {
		if found := findByTag(child, tag); found != nil {
			return found
		}
	}
	return nil
}

func collectByTag(el *etree.Element, tag string, out *[]string) {
	if el.Tag == tag {
		*out = append(*out, el.Text())
	}
	for _, child := range el.ChildElements() {
		collectByTag(child, tag, out)
	}
}
