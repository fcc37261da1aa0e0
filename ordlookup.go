// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pe

import "strings"

// ordinalTables maps a handful of well-known system DLLs that are commonly
// imported by ordinal to their ordinal -> exported name table. This is not
// meant to be exhaustive: it only needs to cover the small set of DLLs whose
// ordinal imports would otherwise make two functionally identical import
// tables hash differently just because one binary imported by name and the
// other by ordinal.
var ordinalTables = map[string]map[uint64]string{
	"ws2_32.dll": {
		1:  "accept",
		2:  "bind",
		3:  "closesocket",
		4:  "connect",
		5:  "getpeername",
		6:  "getsockname",
		7:  "getsockopt",
		8:  "htonl",
		9:  "htons",
		10: "ioctlsocket",
		11: "inet_addr",
		12: "inet_ntoa",
		13: "listen",
		14: "ntohl",
		15: "ntohs",
		16: "recv",
		17: "recvfrom",
		18: "select",
		19: "send",
		20: "sendto",
		21: "setsockopt",
		22: "shutdown",
		23: "socket",
	},
	"oleaut32.dll": {
		2:  "SysReAllocString",
		3:  "SysAllocStringLen",
		4:  "SysReAllocStringLen",
		5:  "SysFreeString",
		6:  "SysStringLen",
		7:  "VariantInit",
		8:  "VariantClear",
		9:  "VariantCopy",
		10: "VariantCopyInd",
		11: "VariantChangeType",
	},
}

// OrdLookup resolves an ordinal import of a well-known system DLL to its
// exported name. If the DLL or the ordinal is not in the built-in table and
// makeGuess is true, a synthetic "ord<N>" name is returned so import
// hashing still has something stable to work with; otherwise an empty
// string is returned.
func OrdLookup(libName string, ordinal uint64, makeGuess bool) string {
	name := strings.ToLower(libName)

	if table, ok := ordinalTables[name]; ok {
		if fn, ok := table[ordinal]; ok {
			return fn
		}
	}

	if makeGuess {
		return "ord" + itoa(ordinal)
	}
	return ""
}

func itoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	var digits []byte
	for v > 0 {
		digits = append([]byte{byte('0' + v%10)}, digits...)
		v /= 10
	}
	return string(digits)
}
