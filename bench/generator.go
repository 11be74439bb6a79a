package main

import (
	"fmt"
	"math/rand"
	"time"

	"spotchat/model"
)

var predefinedMessages = []string{
	"Anyone else here right now?", "Where is the quiet study area?",
	"Is the coffee machine working today?", "This place is packed",
	"Does anyone know the wifi password?", "Lost a blue water bottle, seen it?",
	"When does this building close?", "Best spot to sit near a plug?",
	"Is the elevator still broken?", "Meeting at the main entrance in 5",
	"Printer on floor 2 is out of paper", "Who controls the AC in here?",
	"Great view from the top floor", "The line downstairs is huge",
	"Is there a bathroom on this floor?", "Anyone up for lunch?",
	"Event starting soon in the hall", "Found someone's keys near the door",
}

// sendRequest is one unit of bench work: a message to post into a room.
type sendRequest struct {
	RoomID  string
	Content string
	Tags    []string
}

// Generator produces a bounded stream of send requests across a set of rooms.
// A fraction of them carry the AI-eligible tag to exercise the thread and
// auto-reply paths.
type Generator struct {
	TotalMessages int
	Rooms         int
	TagFraction   float64
	Output        chan sendRequest

	rnd *rand.Rand
}

func NewGenerator(totalMessages, rooms, bufferSize int) *Generator {
	return &Generator{
		TotalMessages: totalMessages,
		Rooms:         rooms,
		TagFraction:   0.05,
		Output:        make(chan sendRequest, bufferSize),
		rnd:           rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (g *Generator) Run() {
	defer close(g.Output)

	for i := 0; i < g.TotalMessages; i++ {
		req := sendRequest{
			RoomID:  fmt.Sprintf("bench-%d", g.rnd.Intn(g.Rooms)+1),
			Content: predefinedMessages[g.rnd.Intn(len(predefinedMessages))],
			Tags:    []string{},
		}
		if g.rnd.Float64() < g.TagFraction {
			req.Tags = []string{model.DefaultAITag}
		}
		g.Output <- req
	}
}
