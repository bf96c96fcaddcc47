package session

import (
	"fmt"
	"hash/crc64"
	"slices"
	"strconv"
	"time"
)

var crcTable = crc64.MakeTable(crc64.ECMA)

// checksum computes a CRC64 over the identity, cookie attributes, expiry
// settings, tags and values of a session. The activity timestamp is left
// out so touching a session does not change it.
func checksum(id string, rec Record) string {
	var sum uint64
	write := func(s string) {
		sum = crc64.Update(sum, crcTable, []byte(s))
		sum = crc64.Update(sum, crcTable, []byte{0})
	}

	write(id)
	write(rec.Name)
	write(rec.Domain)
	write(rec.Path)
	write(strconv.FormatBool(rec.Secure))
	write(strconv.FormatBool(rec.HttpOnly))
	write(instant(rec.Lifetime))
	write(rec.MaximumAge.String())

	for _, tag := range rec.Tags {
		write("#" + tag)
	}

	keys := make([]string, 0, len(rec.Values))
	for k := range rec.Values {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		write(fmt.Sprintf("%s=%#v", k, rec.Values[k]))
	}

	return fmt.Sprintf("%016x", sum)
}

func instant(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return strconv.FormatInt(t.UnixNano(), 10)
}
