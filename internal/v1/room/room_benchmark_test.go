package room

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/openboard/realtime/internal/v1/protocol"
	"github.com/openboard/realtime/internal/v1/types"
)

// benchEnvelope builds one stroke.move frame outside the timed loop.
func benchEnvelope(points int) *protocol.Envelope {
	pts := make([]types.Point, points)
	for i := range pts {
		pts[i] = types.Point{X: float64(i) / float64(points), Y: 0.5, T: int64(i)}
	}
	payload, _ := json.Marshal(protocol.StrokeMovePayload{StrokeID: "bench", Points: pts})
	return &protocol.Envelope{V: protocol.ProtocolVersion, Type: protocol.TypeWbStrokeMove, Payload: payload}
}

func BenchmarkStrokeMoveFanOut(b *testing.B) {
	for _, members := range []int{2, 8, 32} {
		b.Run(fmt.Sprintf("members_%d", members), func(b *testing.B) {
			r := NewRoom(context.Background(), "bench-room", Deps{})
			defer r.cancel()

			sender := newMockClient("sender", types.RoleTypeWeb)
			r.HandleClientConnect(context.Background(), sender)
			clients := make([]*MockClient, members-1)
			for i := range clients {
				clients[i] = newMockClient(fmt.Sprintf("peer-%d", i), types.RoleTypeWeb)
				r.HandleClientConnect(context.Background(), clients[i])
			}
			r.board.StartStroke(sender.GetID(), "bench", types.StrokeStyle{}, nil)

			env := benchEnvelope(8)
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				r.HandleStrokeMove(context.Background(), sender, env)
				if i%1024 == 0 {
					for _, c := range clients {
						c.reset()
					}
				}
			}
		})
	}
}
