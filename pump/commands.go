package pump

import (
	"context"
	"fmt"

	"i4.energy/lab/pumpctl/proto"
)

type op int

const (
	opVersion op = iota
	opFlowRate
	opMode
	opDiameter
	opTargetVolume
	opVolumeAccumulated
	opStart
	opStop
	opClearVolumeAccumulated
	opClearTarget
	opReverse
)

// replyShape is what a command's reply decodes to.
type replyShape int

const (
	replyAck replyShape = iota
	replyText
	replyFloat
	replyFlowRate
)

type command struct {
	verb  string
	args  []string
	reply replyShape
}

// commands holds every fixed-argument command of the pump. Setters carry
// caller supplied arguments and go through exec directly.
var commands = map[op]command{
	opVersion:                {verb: proto.VerbVersion, reply: replyText},
	opFlowRate:               {verb: proto.VerbRate, reply: replyFlowRate},
	opMode:                   {verb: proto.VerbMode, reply: replyText},
	opDiameter:               {verb: proto.VerbDiameter, reply: replyFloat},
	opTargetVolume:           {verb: proto.VerbTarget, reply: replyFloat},
	opVolumeAccumulated:      {verb: proto.VerbDelivered, reply: replyFloat},
	opStart:                  {verb: proto.VerbRun},
	opStop:                   {verb: proto.VerbStop},
	opClearVolumeAccumulated: {verb: proto.VerbClearDelivered},
	opClearTarget:            {verb: proto.VerbTarget, args: []string{"0"}},
	opReverse:                {verb: proto.VerbDirection, args: []string{proto.DirReverse}},
}

// result is a decoded reply; only the fields matching the command's
// replyShape are set.
type result struct {
	text  string
	value float64
	unit  proto.Unit
}

func (p *Pump) run(ctx context.Context, o op) (result, error) {
	cmd, ok := commands[o]
	if !ok {
		return result{}, fmt.Errorf("unknown command %d", o)
	}

	reply, err := p.exec(ctx, cmd.verb, cmd.args...)
	if err != nil {
		return result{}, err
	}

	switch cmd.reply {
	case replyText:
		return result{text: reply}, nil
	case replyFloat:
		v, err := proto.ParseFloatReply(reply)
		if err != nil {
			return result{}, fmt.Errorf("%s: %w", cmd.verb, err)
		}
		return result{value: v}, nil
	case replyFlowRate:
		v, u, err := proto.ParseFlowRateReply(reply)
		if err != nil {
			return result{}, fmt.Errorf("%s: %w", cmd.verb, err)
		}
		return result{value: v, unit: u}, nil
	default:
		return result{}, nil
	}
}

// runValue executes a command whose reply is a single number.
func (p *Pump) runValue(ctx context.Context, o op) (float64, error) {
	r, err := p.run(ctx, o)
	return r.value, err
}

// runAck executes a command that only acknowledges with a prompt.
func (p *Pump) runAck(ctx context.Context, o op) error {
	_, err := p.run(ctx, o)
	return err
}
