package math

// GeometryGenerateFaceNormals returns one unit normal per triangle. Degenerate
// triangles get a zero normal.
func GeometryGenerateFaceNormals(positions []Vec3, triangles [][3]uint32) []Vec3 {
	normals := make([]Vec3, len(triangles))
	for i, tri := range triangles {
		p0 := positions[tri[0]]
		edge1 := positions[tri[1]].Sub(p0)
		edge2 := positions[tri[2]].Sub(p0)

		// NOTE: This just generates a face normal. Smoothing out should be done in a separate pass if desired.
		normals[i] = edge1.Cross(edge2).Normalized()
	}
	return normals
}

// GeometryGenerateNormals averages the face normals touching each vertex.
func GeometryGenerateNormals(positions []Vec3, triangles [][3]uint32) []Vec3 {
	normals := make([]Vec3, len(positions))
	for _, tri := range triangles {
		p0 := positions[tri[0]]
		face := positions[tri[1]].Sub(p0).Cross(positions[tri[2]].Sub(p0))
		for _, idx := range tri {
			normals[idx] = normals[idx].Add(face)
		}
	}
	for i := range normals {
		normals[i] = normals[i].Normalized()
	}
	return normals
}

// GeometryExtents returns the axis-aligned bounds of the positions. Empty input
// yields zero extents.
func GeometryExtents(positions []Vec3) Extents3D {
	if len(positions) == 0 {
		return Extents3D{}
	}
	ext := Extents3D{Min: positions[0], Max: positions[0]}
	for _, p := range positions[1:] {
		ext.Min = ext.Min.Min(p)
		ext.Max = ext.Max.Max(p)
	}
	return ext
}
