package transport

import (
	"encoding/hex"
	"sort"
	"strings"

	"github.com/anicoll/ics2000-integration/internal/pkg/model"
)

var header = []byte{0xAA, 0xAA}

// PacketSize is header, mac, id, command, value and checksum.
const PacketSize = 2 + 6 + 1 + 1 + 1 + 1

// NormalizeMAC strips separators and upper-cases the address.
func NormalizeMAC(mac string) (string, error) {
	clean := strings.ToUpper(strings.NewReplacer(":", "", "-", "", " ", "", ".", "").Replace(mac))
	if len(clean) != 12 {
		return "", ErrInvalidMAC
	}
	if _, err := hex.DecodeString(clean); err != nil {
		return "", ErrInvalidMAC
	}
	return clean, nil
}

func ParseMAC(mac string) ([]byte, error) {
	clean, err := NormalizeMAC(mac)
	if err != nil {
		return nil, err
	}
	return hex.DecodeString(clean)
}

// BuildPacket lays out a local control packet. The last byte is the sum of all others mod 256.
func BuildPacket(mac []byte, wireID byte, cmd model.Command, value byte) []byte {
	p := make([]byte, 0, PacketSize)
	p = append(p, header...)
	p = append(p, mac...)
	p = append(p, wireID, byte(cmd), value)
	return append(p, Checksum(p))
}

func Checksum(b []byte) byte {
	var sum byte
	for _, c := range b {
		sum += c
	}
	return sum
}

// IDMapper squeezes a cloud module id into the single id byte of the wire protocol.
// The mapping is lossy; two ids may share a byte.
type IDMapper func(id int64) byte

const DefaultMapper = "modulo"

var mappers = map[string]IDMapper{
	"modulo": func(id int64) byte {
		return byte(uint64(id) % 256)
	},
	"modulo200": func(id int64) byte {
		return byte(uint64(id)%200 + 1)
	},
	"shift16": func(id int64) byte {
		return byte((uint64(id) >> 16) & 0xFF)
	},
	"shift8": func(id int64) byte {
		return byte((uint64(id) >> 8) & 0xFF)
	},
}

func MapperByName(name string) (IDMapper, error) {
	if name == "" {
		name = DefaultMapper
	}
	m, ok := mappers[name]
	if !ok {
		return nil, ErrUnknownMapper
	}
	return m, nil
}

func MapperNames() []string {
	names := make([]string, 0, len(mappers))
	for n := range mappers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Collisions groups ids that map to the same wire byte. Only groups with more than one id are returned.
func Collisions(ids []int64, m IDMapper) map[byte][]int64 {
	groups := make(map[byte][]int64, len(ids))
	for _, id := range ids {
		b := m(id)
		groups[b] = append(groups[b], id)
	}
	for b, g := range groups {
		if len(g) < 2 {
			delete(groups, b)
			continue
		}
		sort.Slice(g, func(i, j int) bool { return g[i] < g[j] })
	}
	return groups
}
