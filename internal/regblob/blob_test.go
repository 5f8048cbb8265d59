package regblob_test

import (
	"testing"

	. "github.com/jacobsa/ogletest"

	"github.com/nativedbg/core/internal/regblob"
)

func TestBlob(t *testing.T) { RunTests(t) }

type BlobTest struct{}

func init() { RegisterTestSuite(&BlobTest{}) }

func (t *BlobTest) RoundTripsMultipleEntries() {
	b := regblob.NewBuilder(32)
	b.Put("rax", []byte{1, 2, 3, 4, 5, 6, 7, 8})
	b.Put("rip", []byte{0xff})

	entries, err := regblob.Parse(b.Bytes())
	AssertEq(nil, err)
	AssertEq(2, len(entries))

	ExpectEq("rax", entries[0].Name)
	ExpectThat(entries[0].Value, ElementsAre(1, 2, 3, 4, 5, 6, 7, 8))

	ExpectEq("rip", entries[1].Name)
	ExpectThat(entries[1].Value, ElementsAre(0xff))
}

func (t *BlobTest) EmptyBlobParsesToNoEntries() {
	entries, err := regblob.Parse(nil)
	AssertEq(nil, err)
	ExpectEq(0, len(entries))
}

func (t *BlobTest) TruncatedBlobIsAnError() {
	b := regblob.NewBuilder(32)
	b.Put("rax", []byte{1, 2, 3, 4})
	blob := b.Bytes()

	_, err := regblob.Parse(blob[:len(blob)-2])
	ExpectNe(nil, err)
}

func (t *BlobTest) EmptyNameAndValueRoundTrip() {
	b := regblob.NewBuilder(8)
	b.Put("", nil)

	entries, err := regblob.Parse(b.Bytes())
	AssertEq(nil, err)
	AssertEq(1, len(entries))
	ExpectEq("", entries[0].Name)
	ExpectEq(0, len(entries[0].Value))
}
