package symkeys

import "fmt"

// ImageKey builds the SSQP key for an executable image:
// "<filename>/<timestamp-hex><imagesize-hex>/<filename>", hex without
// leading zeros on the concatenated segment, lower case (spec §6).
func ImageKey(filename string, timestamp, imageSize uint32) string {
	id := fmt.Sprintf("%x%x", timestamp, imageSize)
	return filename + "/" + id + "/" + filename
}

// DebugDatabaseKey builds the SSQP key for a debug database (PDB):
// "<pdbname>/<guid-hex-nohyphens><age-hex>/<pdbname>", lower case (spec §6).
func DebugDatabaseKey(pdbName string, guid [16]byte, age uint32) string {
	id := fmt.Sprintf("%x%x", guid[:], age)
	return pdbName + "/" + id + "/" + pdbName
}
