package mesh

// Cell corners are numbered by bit: bit 0 is +X, bit 1 is +Y, bit 2 is +Z.
var cornerOffsets = [8][3]int{
	{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {1, 1, 0},
	{0, 0, 1}, {1, 0, 1}, {0, 1, 1}, {1, 1, 1},
}

// tetrahedra splits a cell into six tetrahedra that all share the 0-7
// diagonal. Each walks from corner 0 to corner 7 adding one axis at a time,
// so every cell face is cut along the diagonal joining its lowest and highest
// corner and neighbouring cells agree on the cut.
var tetrahedra = [6][4]int{
	{0, 1, 3, 7}, // x, y, z
	{0, 1, 5, 7}, // x, z, y
	{0, 2, 3, 7}, // y, x, z
	{0, 2, 6, 7}, // y, z, x
	{0, 4, 5, 7}, // z, x, y
	{0, 4, 6, 7}, // z, y, x
}
