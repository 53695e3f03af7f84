// Package index parses the metadata file of a RAF archive.
//
// The metadata file is a chain of offset-addressed tables:
//
//	header (20 bytes)
//	  fileListOffset -> file list:  count, then {hash, dataOffset, dataSize, pathIndex} records
//	  pathListOffset -> path list:  8-byte header, then {pathOffset, pathSize} records
//	                    path bytes: pathListOffset + pathOffset
//
// Every record's path is checked against its stored hash. A single mismatch
// rejects the whole file.
package index
