package ui

// iconBytes is a 16x16 PNG: a light diagonal cut across a dark square.
var iconBytes = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x10, 0x00, 0x00, 0x00, 0x10,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0xf3, 0xff, 0x61, 0x00, 0x00, 0x00,
	0x57, 0x49, 0x44, 0x41, 0x54, 0x78, 0xda, 0xa5, 0xd3, 0x21, 0x12, 0x00,
	0x20, 0x08, 0x44, 0x51, 0x4e, 0x62, 0x30, 0x7a, 0xff, 0xab, 0x91, 0x75,
	0x34, 0x38, 0x32, 0x22, 0xc2, 0x12, 0x36, 0x10, 0xde, 0x6f, 0x50, 0xa9,
	0xad, 0x23, 0x63, 0xe6, 0x35, 0xca, 0x60, 0x28, 0x70, 0xe2, 0x79, 0x53,
	0x06, 0x87, 0x02, 0x1a, 0x76, 0x07, 0x5e, 0xd8, 0x15, 0xb0, 0xf0, 0x37,
	0xf0, 0xc3, 0x66, 0xc0, 0x83, 0x9f, 0x01, 0x2f, 0x56, 0x03, 0x11, 0x7c,
	0x05, 0xa2, 0x58, 0x04, 0x10, 0xbc, 0x03, 0x28, 0x5e, 0x81, 0x0c, 0x16,
	0x01, 0xf4, 0xad, 0x07, 0xfd, 0xba, 0xda, 0x16, 0x98, 0xda, 0x07, 0x4a,
	0x00, 0x00, 0x00, 0x00, 0x49, 0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
}
