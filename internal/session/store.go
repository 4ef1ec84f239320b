package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"pawbot/internal/provider"
	"pawbot/pkg/logger"
)

const keyRoot = "conversations"

// Store maps conversation ids to their current epoch's history.
//
// Layout: conversations/<id>/epoch holds {"epoch":N}; each epoch's full
// record lives at conversations/<id>/history/<N> and is never rewritten
// by another epoch.
type Store struct {
	backend      Backend
	instructions []provider.Message
}

// NewStore creates a Store seeding new epochs with the given system prompt.
func NewStore(backend Backend, systemPrompt string) *Store {
	return &Store{
		backend:      backend,
		instructions: []provider.Message{provider.SystemMessage(systemPrompt)},
	}
}

// Instructions returns a copy of the seed messages for a fresh epoch.
func (s *Store) Instructions() []provider.Message {
	return append([]provider.Message(nil), s.instructions...)
}

// Load returns the conversation's current session. A conversation seen for
// the first time starts at epoch 0. With reset set, a new empty epoch is
// started and persisted; earlier epochs stay in the backend.
func (s *Store) Load(ctx context.Context, id string, reset bool) (*Session, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}

	current, found, err := s.pointer(ctx, id)
	if err != nil {
		return nil, err
	}

	if !found || reset {
		epoch := 0
		if found {
			epoch = current + 1
		}
		sess := s.fresh(id, epoch)
		if err := s.write(ctx, sess, true); err != nil {
			return nil, err
		}
		if reset {
			logger.Conversation(id).Info().Int("epoch", epoch).Msg("history reset")
		}
		return sess, nil
	}

	sess, err := s.LoadEpoch(ctx, id, current)
	if errors.Is(err, ErrNotFound) {
		// pointer without a record; start the epoch over
		logger.Conversation(id).Warn().Int("epoch", current).Msg("epoch record missing, reseeding")
		sess = s.fresh(id, current)
		if err := s.write(ctx, sess, false); err != nil {
			return nil, err
		}
		return sess, nil
	}
	return sess, err
}

// LoadEpoch reads a specific epoch's record.
func (s *Store) LoadEpoch(ctx context.Context, id string, epoch int) (*Session, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	key := historyKey(id, epoch)
	data, err := s.backend.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &StorageError{Op: "load", Key: key, Err: err}
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, &StorageError{Op: "decode", Key: key, Err: err}
	}
	sess.ConversationID = id
	sess.Epoch = epoch
	s.ensureInstructions(&sess)
	return &sess, nil
}

// Save overwrites the session's epoch record and advances the pointer when
// the session is ahead of it. Saving identical state yields identical bytes.
func (s *Store) Save(ctx context.Context, sess *Session) error {
	if err := validateID(sess.ConversationID); err != nil {
		return err
	}
	current, found, err := s.pointer(ctx, sess.ConversationID)
	if err != nil {
		return err
	}
	return s.write(ctx, sess, !found || sess.Epoch > current)
}

// Epochs lists the epochs with a stored record, ascending.
func (s *Store) Epochs(ctx context.Context, id string) ([]int, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	prefix := historyPrefix(id)
	keys, err := s.backend.Keys(ctx, prefix)
	if err != nil {
		return nil, &StorageError{Op: "list", Key: prefix, Err: err}
	}

	epochs := make([]int, 0, len(keys))
	for _, k := range keys {
		n, err := strconv.Atoi(strings.TrimPrefix(k, prefix))
		if err != nil {
			continue
		}
		epochs = append(epochs, n)
	}
	sort.Ints(epochs)
	return epochs, nil
}

func (s *Store) fresh(id string, epoch int) *Session {
	return &Session{
		ConversationID: id,
		Epoch:          epoch,
		Messages:       s.Instructions(),
	}
}

// ensureInstructions restores the leading system entry on records that lost it.
func (s *Store) ensureInstructions(sess *Session) {
	if len(sess.Messages) > 0 && sess.Messages[0].Role == provider.RoleSystem {
		return
	}
	logger.Conversation(sess.ConversationID).Warn().
		Int("epoch", sess.Epoch).
		Msg("record without system instruction, reseeding")
	sess.Messages = append(s.Instructions(), sess.Messages...)
}

func (s *Store) pointer(ctx context.Context, id string) (int, bool, error) {
	key := epochKey(id)
	data, err := s.backend.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, &StorageError{Op: "load", Key: key, Err: err}
	}
	var p epochPointer
	if err := json.Unmarshal(data, &p); err != nil {
		return 0, false, &StorageError{Op: "decode", Key: key, Err: err}
	}
	return p.Epoch, true, nil
}

// write persists the record, then the pointer if advance is set, so a
// pointer never refers to a missing record.
func (s *Store) write(ctx context.Context, sess *Session, advance bool) error {
	record, err := json.Marshal(sess)
	if err != nil {
		return &StorageError{Op: "encode", Key: historyKey(sess.ConversationID, sess.Epoch), Err: err}
	}

	entries := []Entry{{Key: historyKey(sess.ConversationID, sess.Epoch), Value: record}}
	if advance {
		ptr, err := json.Marshal(epochPointer{Epoch: sess.Epoch})
		if err != nil {
			return &StorageError{Op: "encode", Key: epochKey(sess.ConversationID), Err: err}
		}
		entries = append(entries, Entry{Key: epochKey(sess.ConversationID), Value: ptr})
	}

	if err := s.backend.Put(ctx, entries...); err != nil {
		return &StorageError{Op: "save", Key: entries[0].Key, Err: err}
	}

	logger.Conversation(sess.ConversationID).Debug().
		Int("epoch", sess.Epoch).
		Int("messages", len(sess.Messages)).
		Bool("advance", advance).
		Msg("session saved")
	return nil
}

func validateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidID)
	}
	return nil
}

func escapeID(id string) string {
	esc := url.PathEscape(id)
	// PathEscape leaves dots alone; "." and ".." are not valid path segments
	if esc == "." || esc == ".." {
		esc = strings.ReplaceAll(esc, ".", "%2E")
	}
	return esc
}

func epochKey(id string) string {
	return keyRoot + "/" + escapeID(id) + "/epoch"
}

func historyPrefix(id string) string {
	return keyRoot + "/" + escapeID(id) + "/history/"
}

func historyKey(id string, epoch int) string {
	return historyPrefix(id) + strconv.Itoa(epoch)
}
