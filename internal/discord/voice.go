package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"
	opus "gopkg.in/hraban/opus.v2"

	"github.com/sjawhar/wispr-bot/internal/audio"
	"github.com/sjawhar/wispr-bot/internal/session"
)

// maxFrameSamples is the largest Opus frame (120ms at 48kHz) per channel.
const maxFrameSamples = 5760

type decoder interface {
	Decode(data []byte, pcm []int16) (int, error)
}

type decoderFactory func() (decoder, error)

func newOpusDecoder() (decoder, error) {
	return opus.NewDecoder(audio.DiscordSampleRate, audio.DiscordChannels)
}

// receiver decodes incoming Opus packets per SSRC and writes the PCM into the
// recorder under the speaking user's ID.
type receiver struct {
	rec        *audio.Recorder
	newDecoder decoderFactory
	logger     *slog.Logger

	mu       sync.Mutex
	users    map[uint32]string
	decoders map[uint32]decoder
	pcm      []int16
}

func newReceiver(rec *audio.Recorder, newDecoder decoderFactory, logger *slog.Logger) *receiver {
	return &receiver{
		rec:        rec,
		newDecoder: newDecoder,
		logger:     logger,
		users:      make(map[uint32]string),
		decoders:   make(map[uint32]decoder),
		pcm:        make([]int16, maxFrameSamples*audio.DiscordChannels),
	}
}

func (r *receiver) setSpeaker(ssrc uint32, userID string) {
	if ssrc == 0 || userID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[ssrc] = userID
}

// handle decodes one packet. Packets from unknown SSRCs are dropped until a
// speaking update names their user.
func (r *receiver) handle(ssrc uint32, payload []byte) {
	if len(payload) == 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[ssrc]
	if !ok {
		return
	}

	dec, ok := r.decoders[ssrc]
	if !ok {
		var err error
		dec, err = r.newDecoder()
		if err != nil {
			r.logger.Warn("create opus decoder", "ssrc", ssrc, "error", err)
			return
		}
		r.decoders[ssrc] = dec
	}

	n, err := dec.Decode(payload, r.pcm)
	if err != nil {
		r.logger.Debug("opus decode", "ssrc", ssrc, "error", err)
		return
	}
	samples := n * audio.DiscordChannels
	frame := make([]int16, samples)
	copy(frame, r.pcm[:samples])
	r.rec.Write(user, frame)
}

// voiceConnection implements session.Connection on top of a discordgo voice
// connection.
type voiceConnection struct {
	vc   *discordgo.VoiceConnection
	rec  *audio.Recorder
	recv *receiver

	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

func (c *voiceConnection) listen() {
	defer c.wg.Done()
	for {
		select {
		case <-c.stop:
			return
		case pkt, ok := <-c.vc.OpusRecv:
			if !ok {
				return
			}
			if pkt != nil {
				c.recv.handle(pkt.SSRC, pkt.Opus)
			}
		}
	}
}

func (c *voiceConnection) StartCapture() error            { return c.rec.Start() }
func (c *voiceConnection) StopCapture() error             { return c.rec.Stop() }
func (c *voiceConnection) Collect() (audio.Window, error) { return c.rec.Collect() }

func (c *voiceConnection) Disconnect() error {
	var err error
	c.once.Do(func() {
		close(c.stop)
		c.wg.Wait()
		c.rec.Reset()
		err = c.vc.Disconnect()
	})
	return err
}

// Connector joins voice channels through a discordgo session.
type Connector struct {
	session *discordgo.Session
	logger  *slog.Logger
}

func NewConnector(s *discordgo.Session, logger *slog.Logger) *Connector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Connector{session: s, logger: logger.With("component", "voice")}
}

func (c *Connector) Connect(ctx context.Context, guildID, channelID string) (session.Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Join muted but not deafened: deafened connections receive no audio.
	vc, err := c.session.ChannelVoiceJoin(guildID, channelID, true, false)
	if err != nil {
		return nil, fmt.Errorf("join voice channel: %w", err)
	}

	rec := audio.NewRecorder(guildID, audio.DiscordSampleRate, audio.DiscordChannels)
	recv := newReceiver(rec, newOpusDecoder, c.logger.With("guild", guildID))
	vc.AddHandler(func(_ *discordgo.VoiceConnection, su *discordgo.VoiceSpeakingUpdate) {
		recv.setSpeaker(uint32(su.SSRC), su.UserID)
	})

	conn := &voiceConnection{vc: vc, rec: rec, recv: recv, stop: make(chan struct{})}
	conn.wg.Add(1)
	go conn.listen()
	return conn, nil
}
