package iblcache

// these functions are only exported when running tests

var ReadSidecar = readSidecar
var FormatSidecar = formatSidecar

func (k Key) Stem(kind string) string {
	return k.stem(kind)
}
