package docstore_test

import (
	"testing"

	"go.uber.org/goleak"

	"shivuk/internal/testsupport"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, testsupport.LeakOptions()...)
}
