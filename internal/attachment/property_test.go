package attachment

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// Any number of further saves after a processed save never touches storage.
func TestProperty_ProcessingRunsAtMostOnce(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		f := newFixture(rt)
		e := f.engine.newEntity(rt, "user", "42")
		require.NoError(rt, e.Set(ctx, "avatar", Upload{Name: "me.png", Data: pngBytes(rt, 10, 10)}))
		require.NoError(rt, f.engine.save(ctx, e))
		stored := len(f.store.saves)

		saves := rapid.IntRange(1, 5).Draw(rt, "saves")
		for i := 0; i < saves; i++ {
			require.NoError(rt, e.Set(ctx, "counter", i))
			require.NoError(rt, f.engine.save(ctx, e))
		}
		require.Len(rt, f.store.saves, stored)
		require.False(rt, e.Attachments().IsDirty())
	})
}

// Whatever plain attributes are loaded, a load followed by a save writes the
// same row back and never writes an attachment object.
func TestProperty_StripMergeRoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		f := newFixture(rt)

		row := map[string]any{}
		n := rapid.IntRange(0, 6).Draw(rt, "scalars")
		for i := 0; i < n; i++ {
			row[fmt.Sprintf("field_%d", i)] = rapid.String().Draw(rt, "value")
		}
		if rapid.Bool().Draw(rt, "withAvatar") {
			row["avatar_file_name"] = "me.png"
			row["avatar_file_size"] = float64(10)
			row["avatar_content_type"] = "image/png"
			row["avatar_updated_at"] = float64(1700000000)
			row["avatar_fingerprint"] = "f00"
		}
		f.engine.rows["1"] = row

		e := f.engine.load(ctx, rt, "user", "1")
		require.NoError(rt, f.engine.save(ctx, e))
		require.Equal(rt, row, f.engine.rows["1"])
	})
}

// The last of upload and sentinel before a save decides the outcome.
func TestProperty_SentinelUploadPrecedence(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		f := newFixture(rt)
		e := f.engine.newEntity(rt, "user", "42")

		ops := rapid.SliceOfN(rapid.Bool(), 1, 6).Draw(rt, "uploadOps")
		for _, upload := range ops {
			if upload {
				require.NoError(rt, e.Set(ctx, "avatar", Upload{Name: "me.txt", Data: []byte("x")}))
			} else {
				require.NoError(rt, e.Set(ctx, "avatar", testSentinel))
			}
		}
		require.NoError(rt, f.engine.save(ctx, e))

		last := ops[len(ops)-1]
		require.Equal(rt, last, f.store.has("user/avatar/000/000/042/original/me.txt"))
		require.Equal(rt, last, e.Attributes().Has("avatar_file_name"))
	})
}
