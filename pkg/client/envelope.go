package client

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"
)

// Namespace is the Sherpa service namespace.
const Namespace = "http://sherpa.sherpaan.nl/"

const (
	soapEnvelopeNS = "http://www.w3.org/2003/05/soap-envelope"
	redacted       = "********"
)

// encodeEnvelope builds a SOAP 1.2 request for service. The security code
// is sent first, the remaining parameters in name order.
func encodeEnvelope(service, securityCode string, params map[string]string) []byte {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	buf.WriteString(`<soap:Envelope xmlns:soap="` + soapEnvelopeNS + `" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" xmlns:xsd="http://www.w3.org/2001/XMLSchema">`)
	buf.WriteString(`<soap:Body>`)
	buf.WriteString(`<` + service + ` xmlns="` + Namespace + `">`)

	writeParam(&buf, "securityCode", securityCode)

	names := make([]string, 0, len(params))
	for name := range params {
		if name != "securityCode" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		writeParam(&buf, name, params[name])
	}

	buf.WriteString(`</` + service + `>`)
	buf.WriteString(`</soap:Body></soap:Envelope>`)
	return buf.Bytes()
}

func writeParam(buf *bytes.Buffer, name, value string) {
	buf.WriteString("<" + name + ">")
	_ = xml.EscapeText(buf, []byte(value))
	buf.WriteString("</" + name + ">")
}

// element is a parsed XML element keyed by local name.
type element struct {
	name     string
	text     strings.Builder
	children []*element
}

func (e *element) child(name string) *element {
	for _, c := range e.children {
		if c.name == name {
			return c
		}
	}
	return nil
}

// find returns the first descendant named name, depth first.
func (e *element) find(name string) *element {
	for _, c := range e.children {
		if c.name == name {
			return c
		}
		if found := c.find(name); found != nil {
			return found
		}
	}
	return nil
}

// value converts the element into generic data: leaves become their
// trimmed text, parents become maps, and repeated siblings become lists.
func (e *element) value() any {
	if len(e.children) == 0 {
		return strings.TrimSpace(e.text.String())
	}

	m := make(map[string]any, len(e.children))
	for _, c := range e.children {
		v := c.value()
		existing, ok := m[c.name]
		if !ok {
			m[c.name] = v
			continue
		}
		if list, isList := existing.([]any); isList {
			m[c.name] = append(list, v)
		} else {
			m[c.name] = []any{existing, v}
		}
	}
	return m
}

// parseXML reads a whole document into an element tree.
func parseXML(r io.Reader) (*element, error) {
	dec := xml.NewDecoder(r)
	root := &element{}
	stack := []*element{root}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			el := &element{name: t.Name.Local}
			parent := stack[len(stack)-1]
			parent.children = append(parent.children, el)
			stack = append(stack, el)
		case xml.EndElement:
			if len(stack) > 1 {
				stack = stack[:len(stack)-1]
			}
		case xml.CharData:
			stack[len(stack)-1].text.Write(t)
		}
	}

	if len(stack) != 1 {
		return nil, fmt.Errorf("unterminated element %q", stack[len(stack)-1].name)
	}
	if len(root.children) == 0 {
		return nil, fmt.Errorf("empty document")
	}
	return root, nil
}

// fault is a decoded SOAP fault.
type fault struct {
	Code   string
	Reason string
}

// findFault extracts a SOAP 1.2 (or 1.1) fault from the body, if present.
func findFault(body *element) *fault {
	f := body.find("Fault")
	if f == nil {
		return nil
	}

	out := &fault{}
	if code := f.child("Code"); code != nil {
		if v := code.child("Value"); v != nil {
			out.Code = strings.TrimSpace(v.text.String())
		}
	} else if code := f.child("faultcode"); code != nil {
		out.Code = strings.TrimSpace(code.text.String())
	}
	if reason := f.child("Reason"); reason != nil {
		if txt := reason.child("Text"); txt != nil {
			out.Reason = strings.TrimSpace(txt.text.String())
		}
	} else if reason := f.child("faultstring"); reason != nil {
		out.Reason = strings.TrimSpace(reason.text.String())
	}
	return out
}

// isSenderFault reports whether the fault blames the request.
func (f *fault) isSenderFault() bool {
	code := f.Code
	if i := strings.LastIndexByte(code, ':'); i >= 0 {
		code = code[i+1:]
	}
	return code == "Sender" || code == "Client"
}

// decodeResponse parses a SOAP response and returns the <service>Result
// element as generic data, or the fault it carries.
func decodeResponse(data []byte, service string) (map[string]any, *fault, error) {
	root, err := parseXML(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("parse response: %w", err)
	}

	body := root.find("Body")
	if body == nil {
		return nil, nil, fmt.Errorf("response has no SOAP body")
	}
	if f := findFault(body); f != nil {
		return nil, f, nil
	}

	result := body.find(service + "Result")
	if result == nil {
		return nil, nil, fmt.Errorf("response has no %sResult element", service)
	}

	m, ok := result.value().(map[string]any)
	if !ok {
		// empty result element
		return map[string]any{}, nil, nil
	}
	return m, nil, nil
}
