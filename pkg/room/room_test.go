package room

import (
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/claspvr/claspd/pkg/proto"
)

// fakeConn records every envelope sent to it. The mutex matters because the
// deferred info request to a joining member fires on a timer goroutine.
type fakeConn struct {
	mu   sync.Mutex
	envs []proto.Envelope
}

func (f *fakeConn) Send(env proto.Envelope) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.envs = append(f.envs, env)
}

func (f *fakeConn) sent() []proto.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]proto.Envelope(nil), f.envs...)
}

func (f *fakeConn) sentOfType(t proto.MessageType) []proto.Envelope {
	var out []proto.Envelope
	for _, env := range f.sent() {
		if env.Type == t {
			out = append(out, env)
		}
	}
	return out
}

func testLog() *logrus.Logger {
	log := logrus.New()
	log.Out = io.Discard
	return log
}

func newTestRoom(t *testing.T) *Room {
	t.Helper()
	return NewDirectory(testLog()).Create(&fakeConn{})
}

func TestJoinTwice(t *testing.T) {
	r := newTestRoom(t)
	a := &fakeConn{}

	assert.Equal(t, proto.Success, r.Join(a, nil))
	assert.Equal(t, proto.AlreadyInThisRoom, r.Join(a, nil))
	assert.Equal(t, 1, r.Len())
}

func TestJoinSendsRoomInfo(t *testing.T) {
	r := newTestRoom(t)
	a := &fakeConn{}
	require.Equal(t, proto.Success, r.Join(a, nil))

	envs := a.sent()
	require.Len(t, envs, 1)
	assert.Equal(t, proto.TypeUpdateRoomInfo, envs[0].Type)
	assert.Equal(t, r.ID(), envs[0].RoomID)
	require.NotNil(t, envs[0].RoomFromMember)

	// Default pose is the identity transform.
	assert.Nil(t, envs[0].RoomFromMember.Position)
	assert.Nil(t, envs[0].RoomFromMember.Rotation)
}

func TestJoinEmptyRoomRequestsNoInfo(t *testing.T) {
	r := newTestRoom(t)
	a := &fakeConn{}
	require.Equal(t, proto.Success, r.Join(a, nil))

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, a.sentOfType(proto.TypeRequestMemberInfo))
}

func TestSecondJoinRequestsInfoFromBothSides(t *testing.T) {
	r := newTestRoom(t)
	a := &fakeConn{}
	b := &fakeConn{}
	require.Equal(t, proto.Success, r.Join(a, nil))
	require.Equal(t, proto.Success, r.Join(b, nil))

	// The existing member is asked inline.
	reqs := a.sentOfType(proto.TypeRequestMemberInfo)
	require.Len(t, reqs, 1)
	assert.Equal(t, r.ID(), reqs[0].RoomID)

	// The newcomer is asked on a deferred notice.
	require.Eventually(t, func() bool {
		return len(b.sentOfType(proto.TypeRequestMemberInfo)) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestLeave(t *testing.T) {
	r := newTestRoom(t)
	a := &fakeConn{}
	b := &fakeConn{}

	assert.Equal(t, proto.UnknownMember, r.Leave(a))

	require.Equal(t, proto.Success, r.Join(a, nil))
	require.Equal(t, proto.Success, r.Join(b, nil))

	assert.Equal(t, proto.Success, r.Leave(a))
	assert.Equal(t, proto.UnknownMember, r.Leave(a))

	lefts := b.sentOfType(proto.TypeMemberLeft)
	require.Len(t, lefts, 1)
	assert.Equal(t, 1, lefts[0].MemberID)
	assert.Equal(t, r.ID(), lefts[0].RoomID)
}

func TestMemberIDsStartAtOne(t *testing.T) {
	r := newTestRoom(t)
	a := &fakeConn{}
	b := &fakeConn{}
	require.Equal(t, proto.Success, r.Join(a, nil))
	require.Equal(t, proto.Success, r.Join(b, nil))

	// Ids are room scoped and monotonic; 0 stays free as a sentinel.
	require.Equal(t, proto.Success, r.Leave(a))
	c := &fakeConn{}
	require.Equal(t, proto.Success, r.Join(c, nil))
	member := r.findMember(c)
	require.NotNil(t, member)
	assert.Equal(t, 3, member.ID())
}

func TestInitInfoFanOut(t *testing.T) {
	r := newTestRoom(t)
	a := &fakeConn{}
	b := &fakeConn{}
	require.Equal(t, proto.Success, r.Join(a, nil))
	require.Equal(t, proto.Success, r.Join(b, nil))

	r.MemberInitInfo(a, json.RawMessage(`{"frodo":"sam"}`))

	adds := b.sentOfType(proto.TypeAddRemoteMember)
	require.Len(t, adds, 1)
	assert.Equal(t, 1, adds[0].MemberID)
	assert.JSONEq(t, `{"frodo":"sam"}`, string(adds[0].InitInfo))
	require.NotNil(t, adds[0].RoomFromMember)

	// The pending set is cleared; a second init info reaches nobody new.
	r.MemberInitInfo(a, json.RawMessage(`{"merry":"pippin"}`))
	assert.Len(t, b.sentOfType(proto.TypeAddRemoteMember), 1)
}

func TestPrimaryMessageGatedUntilInitInfo(t *testing.T) {
	r := newTestRoom(t)
	a := &fakeConn{}
	b := &fakeConn{}
	require.Equal(t, proto.Success, r.Join(a, nil))
	require.Equal(t, proto.Success, r.Join(b, nil))

	// b has not broadcast its init info yet, so a must not see its updates.
	r.MessageFromPrimary(b, json.RawMessage(`{"n":1}`), false)
	assert.Empty(t, a.sentOfType(proto.TypeMessageFromPrimary))

	r.MemberInitInfo(b, json.RawMessage(`{}`))
	r.MessageFromPrimary(b, json.RawMessage(`{"n":2}`), true)

	primaries := a.sentOfType(proto.TypeMessageFromPrimary)
	require.Len(t, primaries, 1)
	assert.Equal(t, 2, primaries[0].MemberID)
	assert.True(t, primaries[0].MessageIsReliable)
	assert.JSONEq(t, `{"n":2}`, string(primaries[0].Message))

	// The sender never receives its own broadcast.
	assert.Empty(t, b.sentOfType(proto.TypeMessageFromPrimary))
}

func TestSecondaryMessageRouting(t *testing.T) {
	r := newTestRoom(t)
	a := &fakeConn{}
	b := &fakeConn{}
	c := &fakeConn{}
	require.Equal(t, proto.Success, r.Join(a, nil))
	require.Equal(t, proto.Success, r.Join(b, nil))
	require.Equal(t, proto.Success, r.Join(c, nil))

	r.MessageFromSecondary(b, 1, json.RawMessage(`{"ack":true}`), false)

	got := a.sentOfType(proto.TypeMessageFromSecondary)
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].MemberID)
	assert.JSONEq(t, `{"ack":true}`, string(got[0].Message))
	assert.Empty(t, c.sentOfType(proto.TypeMessageFromSecondary))

	// Unknown targets and non-member senders are dropped quietly.
	r.MessageFromSecondary(b, 99, json.RawMessage(`{}`), false)
	r.MessageFromSecondary(&fakeConn{}, 1, json.RawMessage(`{}`), false)
	assert.Len(t, a.sentOfType(proto.TypeMessageFromSecondary), 1)
}

func TestEjectAll(t *testing.T) {
	r := newTestRoom(t)
	a := &fakeConn{}
	b := &fakeConn{}
	require.Equal(t, proto.Success, r.Join(a, nil))
	require.Equal(t, proto.Success, r.Join(b, nil))

	r.EjectAll()

	assert.Equal(t, 0, r.Len())
	require.Len(t, a.sentOfType(proto.TypeEjectedFromRoom), 1)
	require.Len(t, b.sentOfType(proto.TypeEjectedFromRoom), 1)
	assert.Equal(t, r.ID(), a.sentOfType(proto.TypeEjectedFromRoom)[0].RoomID)
}

func TestJoinViaHost(t *testing.T) {
	r := newTestRoom(t)
	host := &fakeConn{}
	joiner := &fakeConn{}

	hostPose := proto.Transform{Position: &proto.Vector{Z: 1}}
	require.Equal(t, proto.Success, r.Join(host, &hostPose))

	hostFromJoiner := proto.Transform{Position: &proto.Vector{X: 2}}
	require.Equal(t, proto.Success, r.JoinViaHost(joiner, host, hostFromJoiner))

	got, ok := r.RoomFromMember(joiner)
	require.True(t, ok)
	require.NotNil(t, got.Position)
	assert.InDelta(t, 2, got.Position.X, 1e-9)
	assert.InDelta(t, 1, got.Position.Z, 1e-9)
}

func TestJoinViaHostUnknownHost(t *testing.T) {
	r := newTestRoom(t)
	assert.Equal(t, proto.UnknownMember, r.JoinViaHost(&fakeConn{}, &fakeConn{}, proto.Transform{}))
}

func TestDirectory(t *testing.T) {
	d := NewDirectory(testLog())
	owner := &fakeConn{}
	other := &fakeConn{}

	r := d.Create(owner)
	require.NotEmpty(t, r.ID())
	assert.Same(t, r, d.Find(r.ID()))
	assert.Nil(t, d.Find("fred"))
	assert.Nil(t, d.Find(""))

	require.Equal(t, proto.Success, r.Join(other, nil))

	assert.Equal(t, proto.PermissionDenied, d.Destroy(other, r.ID()))
	assert.Equal(t, proto.Success, d.Destroy(owner, r.ID()))
	assert.Len(t, other.sentOfType(proto.TypeEjectedFromRoom), 1)

	// Destroy is not idempotent: the second call finds nothing.
	assert.Equal(t, proto.NoSuchRoom, d.Destroy(owner, r.ID()))
	assert.Equal(t, 0, d.Len())
}
