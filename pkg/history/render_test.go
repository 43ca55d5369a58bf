package history

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/harun/companion/pkg/relay"
)

func TestRender(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		assert.Equal(t, "", Render(nil))
	})

	t.Run("turns", func(t *testing.T) {
		out := Render([]relay.Turn{
			{Transcript: "An agent perceives its environment.", Feedback: "Through what, dear?"},
			{Transcript: "Sensors!", Feedback: "Ah, I see now."},
		})
		assert.Equal(t, "STUDENT: An agent perceives its environment.\nGRANDPA: Through what, dear?\nSTUDENT: Sensors!\nGRANDPA: Ah, I see now.", out)
	})

	t.Run("skips blank sides", func(t *testing.T) {
		out := Render([]relay.Turn{{Transcript: "  ", Feedback: "Hmm, you were quiet."}})
		assert.Equal(t, "GRANDPA: Hmm, you were quiet.", out)
	})
}
