package hpack

// staticTable is the fixed table of RFC 7541 Appendix A. Index 1 on the
// wire maps to staticTable[0].
var staticTable = []HeaderField{
	{Name: ":authority"},
	{Name: ":method", Value: "GET"},
	{Name: ":method", Value: "POST"},
	{Name: ":path", Value: "/"},
	{Name: ":path", Value: "/index.html"},
	{Name: ":scheme", Value: "http"},
	{Name: ":scheme", Value: "https"},
	{Name: ":status", Value: "200"},
	{Name: ":status", Value: "204"},
	{Name: ":status", Value: "206"},
	{Name: ":status", Value: "304"},
	{Name: ":status", Value: "400"},
	{Name: ":status", Value: "404"},
	{Name: ":status", Value: "500"},
	{Name: "accept-charset"},
	{Name: "accept-encoding", Value: "gzip, deflate"},
	{Name: "accept-language"},
	{Name: "accept-ranges"},
	{Name: "accept"},
	{Name: "access-control-allow-origin"},
	{Name: "age"},
	{Name: "allow"},
	{Name: "authorization"},
	{Name: "cache-control"},
	{Name: "content-disposition"},
	{Name: "content-encoding"},
	{Name: "content-language"},
	{Name: "content-length"},
	{Name: "content-location"},
	{Name: "content-range"},
	{Name: "content-type"},
	{Name: "cookie"},
	{Name: "date"},
	{Name: "etag"},
	{Name: "expect"},
	{Name: "expires"},
	{Name: "from"},
	{Name: "host"},
	{Name: "if-match"},
	{Name: "if-modified-since"},
	{Name: "if-none-match"},
	{Name: "if-range"},
	{Name: "if-unmodified-since"},
	{Name: "last-modified"},
	{Name: "link"},
	{Name: "location"},
	{Name: "max-forwards"},
	{Name: "proxy-authenticate"},
	{Name: "proxy-authorization"},
	{Name: "range"},
	{Name: "referer"},
	{Name: "refresh"},
	{Name: "retry-after"},
	{Name: "server"},
	{Name: "set-cookie"},
	{Name: "strict-transport-security"},
	{Name: "transfer-encoding"},
	{Name: "user-agent"},
	{Name: "vary"},
	{Name: "via"},
	{Name: "www-authenticate"},
}

// staticNameIndex maps a header name to its lowest static table index, for
// literal representations that reference the name only.
var staticNameIndex = buildStaticNameIndex()

func buildStaticNameIndex() map[string]uint64 {
	m := make(map[string]uint64, len(staticTable))
	for i, f := range staticTable {
		if _, ok := m[f.Name]; !ok {
			m[f.Name] = uint64(i + 1)
		}
	}
	return m
}

// entryOverhead is the per-entry size overhead defined by RFC 7541 §4.1.
const entryOverhead = 32

// dynamicTable is one side's compression table. The encoder and decoder
// each own an independent instance; neither is ever reset mid-connection
// except through explicit table-size updates.
type dynamicTable struct {
	// ents holds entries oldest first; the newest entry is ents[len-1]
	// and carries the lowest dynamic index on the wire.
	ents    []HeaderField
	size    uint32
	maxSize uint32
}

func (t *dynamicTable) add(f HeaderField) {
	t.ents = append(t.ents, f)
	t.size += f.Size()
	t.evict()
}

// setMaxSize applies a table-size update, evicting as needed.
func (t *dynamicTable) setMaxSize(v uint32) {
	t.maxSize = v
	t.evict()
}

func (t *dynamicTable) evict() {
	var n int
	for t.size > t.maxSize && n < len(t.ents) {
		t.size -= t.ents[n].Size()
		n++
	}
	if n > 0 {
		copy(t.ents, t.ents[n:])
		t.ents = t.ents[:len(t.ents)-n]
	}
}

// lookup resolves a wire index covering the static table and then this
// dynamic table. Returns false for index 0 or out of range.
func (t *dynamicTable) lookup(i uint64) (HeaderField, bool) {
	if i == 0 {
		return HeaderField{}, false
	}
	if i <= uint64(len(staticTable)) {
		return staticTable[i-1], true
	}
	di := i - uint64(len(staticTable)) - 1
	if di >= uint64(len(t.ents)) {
		return HeaderField{}, false
	}
	return t.ents[uint64(len(t.ents))-1-di], true
}
