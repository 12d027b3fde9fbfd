package hazel

import (
	"testing"

	"github.com/shelfdb/shelf/lib/engine/enginetest"
)

func Test(t *testing.T) {
	enginetest.RunEngineTests(t, "Hazel", Factory())
}
