package pump_test

import (
	"fmt"

	gomock "go.uber.org/mock/gomock"
	"i4.energy/lab/pumpctl/transport"
)

// MockSequenceBuilder scripts request/response exchanges on a mock
// transport. Replies are served one byte per Read, as a serial port with
// a one byte buffer would.
type MockSequenceBuilder struct {
	transport *transport.MockTransport
	calls     []any
}

func NewMockSequence(transport *transport.MockTransport) *MockSequenceBuilder {
	return &MockSequenceBuilder{
		transport: transport,
		calls:     []any{},
	}
}

func (b *MockSequenceBuilder) Exchange(request, reply string) *MockSequenceBuilder {
	b.calls = append(b.calls, b.transport.EXPECT().Write([]byte(request)).Return(len(request), nil))
	return b.Reply(reply)
}

// Reply queues bytes without a preceding write.
func (b *MockSequenceBuilder) Reply(reply string) *MockSequenceBuilder {
	for i := 0; i < len(reply); i++ {
		c := reply[i]
		b.calls = append(b.calls,
			b.transport.EXPECT().Read(gomock.Any()).DoAndReturn(func(p []byte) (int, error) {
				p[0] = c
				return 1, nil
			}),
		)
	}
	return b
}

func (b *MockSequenceBuilder) Version(address int, version string) *MockSequenceBuilder {
	return b.Exchange(fmt.Sprintf("%d VER\r", address), fmt.Sprintf("\n%s\r%d:", version, address%10))
}

// Silent writes request and times out waiting for the first reply byte.
func (b *MockSequenceBuilder) Silent(request string) *MockSequenceBuilder {
	b.calls = append(b.calls,
		b.transport.EXPECT().Write([]byte(request)).Return(len(request), nil),
		b.transport.EXPECT().Read(gomock.Any()).Return(0, nil),
	)
	return b
}

func (b *MockSequenceBuilder) Build() []any {
	return b.calls
}
