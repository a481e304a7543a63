package testutil

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// MockRequest records one call received by MockSherpa.
type MockRequest struct {
	Service string
	Params  map[string]string
	Header  http.Header
}

type mockFeed struct {
	itemKey string
	items   []map[string]string
}

// MockSherpa is an httptest-backed Sherpa SOAP endpoint. Each registered
// service serves items whose Token exceeds the request's token parameter,
// honoring the count or maxResult page-size hints.
type MockSherpa struct {
	Server *httptest.Server

	mu           sync.Mutex
	securityCode string
	responseTime int
	feeds        map[string]*mockFeed
	failures     []int
	faults       []string
	requests     []MockRequest
}

// NewMockSherpa starts a mock endpoint accepting securityCode.
func NewMockSherpa(securityCode string) *MockSherpa {
	m := &MockSherpa{
		securityCode: securityCode,
		responseTime: 12,
		feeds:        make(map[string]*mockFeed),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

// URL returns the service endpoint.
func (m *MockSherpa) URL() string {
	return m.Server.URL + "/214/Sherpa.asmx"
}

// WSDL returns the endpoint's WSDL URL.
func (m *MockSherpa) WSDL() string {
	return m.URL() + "?wsdl"
}

// Close shuts the server down.
func (m *MockSherpa) Close() {
	m.Server.Close()
}

// AddItems registers items for service under itemKey. Every item must carry
// a Token element.
func (m *MockSherpa) AddItems(service, itemKey string, items ...map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.feeds[service]
	if !ok {
		f = &mockFeed{itemKey: itemKey}
		m.feeds[service] = f
	}
	f.items = append(f.items, items...)
	sort.SliceStable(f.items, func(i, j int) bool {
		return tokenValue(f.items[i]) < tokenValue(f.items[j])
	})
}

// FailNext makes the next n calls answer with HTTP status.
func (m *MockSherpa) FailNext(status, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < n; i++ {
		m.failures = append(m.failures, status)
	}
}

// FaultNext makes the next n calls answer with a receiver SOAP fault.
func (m *MockSherpa) FaultNext(reason string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < n; i++ {
		m.faults = append(m.faults, reason)
	}
}

// Requests returns a copy of the calls received so far.
func (m *MockSherpa) Requests() []MockRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockRequest(nil), m.requests...)
}

// Calls returns the number of calls received.
func (m *MockSherpa) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func (m *MockSherpa) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	service, params, err := parseRequest(body)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, MockRequest{Service: service, Params: params, Header: r.Header.Clone()})

	w.Header().Set("Content-Type", "application/soap+xml; charset=utf-8")

	if err != nil {
		writeFault(w, "soap:Sender", err.Error())
		return
	}
	if len(m.failures) > 0 {
		status := m.failures[0]
		m.failures = m.failures[1:]
		w.WriteHeader(status)
		return
	}
	if len(m.faults) > 0 {
		reason := m.faults[0]
		m.faults = m.faults[1:]
		writeFault(w, "soap:Receiver", reason)
		return
	}
	if params["securityCode"] != m.securityCode {
		writeFault(w, "soap:Sender", "Invalid security code")
		return
	}

	f, ok := m.feeds[service]
	if !ok {
		writeFault(w, "soap:Sender", "Unknown service "+service)
		return
	}

	cursor, _ := strconv.ParseUint(params["token"], 10, 64)
	limit := 0
	if v, ok := params["count"]; ok {
		limit, _ = strconv.Atoi(v)
	} else if v, ok := params["maxResult"]; ok {
		limit, _ = strconv.Atoi(v)
	}

	var page []map[string]string
	for _, item := range f.items {
		if tokenValue(item) <= cursor {
			continue
		}
		page = append(page, item)
		if limit > 0 && len(page) == limit {
			break
		}
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	buf.WriteString(`<soap:Envelope xmlns:soap="http://www.w3.org/2003/05/soap-envelope"><soap:Body>`)
	fmt.Fprintf(&buf, `<%sResponse xmlns="http://sherpa.sherpaan.nl/"><%sResult>`, service, service)
	buf.WriteString(`<ResponseValue>`)
	for _, item := range page {
		buf.WriteString("<" + f.itemKey + ">")
		keys := make([]string, 0, len(item))
		for k := range item {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			buf.WriteString("<" + k + ">")
			_ = xml.EscapeText(&buf, []byte(item[k]))
			buf.WriteString("</" + k + ">")
		}
		buf.WriteString("</" + f.itemKey + ">")
	}
	buf.WriteString(`</ResponseValue>`)
	fmt.Fprintf(&buf, `<ResponseTime>%d</ResponseTime>`, m.responseTime)
	fmt.Fprintf(&buf, `</%sResult></%sResponse>`, service, service)
	buf.WriteString(`</soap:Body></soap:Envelope>`)

	_, _ = w.Write(buf.Bytes())
}

func writeFault(w http.ResponseWriter, code, reason string) {
	w.WriteHeader(http.StatusInternalServerError)
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	buf.WriteString(`<soap:Envelope xmlns:soap="http://www.w3.org/2003/05/soap-envelope"><soap:Body><soap:Fault>`)
	buf.WriteString(`<soap:Code><soap:Value>` + code + `</soap:Value></soap:Code>`)
	buf.WriteString(`<soap:Reason><soap:Text xml:lang="en">`)
	_ = xml.EscapeText(&buf, []byte(reason))
	buf.WriteString(`</soap:Text></soap:Reason></soap:Fault></soap:Body></soap:Envelope>`)
	_, _ = w.Write(buf.Bytes())
}

// parseRequest extracts the operation name and its parameters from a SOAP
// request body.
func parseRequest(body []byte) (string, map[string]string, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	params := make(map[string]string)

	var (
		inBody  bool
		service string
		current string
		text    strings.Builder
	)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", nil, fmt.Errorf("malformed request: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch {
			case t.Name.Local == "Body":
				inBody = true
			case inBody && service == "":
				service = t.Name.Local
			case service != "":
				current = t.Name.Local
				text.Reset()
			}
		case xml.CharData:
			if current != "" {
				text.Write(t)
			}
		case xml.EndElement:
			if current != "" && t.Name.Local == current {
				params[current] = text.String()
				current = ""
			}
		}
	}

	if service == "" {
		return "", nil, fmt.Errorf("no operation in request")
	}
	return service, params, nil
}

func tokenValue(item map[string]string) uint64 {
	v, _ := strconv.ParseUint(strings.TrimSpace(item["Token"]), 10, 64)
	return v
}

// StockItem builds a ChangedStock item.
func StockItem(itemCode, warehouse string, token uint64, available int) map[string]string {
	return map[string]string{
		"ItemCode":      itemCode,
		"WarehouseCode": warehouse,
		"Token":         strconv.FormatUint(token, 10),
		"Available":     strconv.Itoa(available),
		"Stock":         strconv.Itoa(available),
		"Reserved":      "0",
		"ItemStatus":    "Active",
		"LastModified":  "2024-02-28T13:45:10",
	}
}

// ChangedItem builds a ChangedItems item.
func ChangedItem(itemCode string, token uint64) map[string]string {
	return map[string]string{
		"ItemCode":   itemCode,
		"Token":      strconv.FormatUint(token, 10),
		"ItemStatus": "Active",
	}
}
