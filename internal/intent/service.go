package intent

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"aura/internal/bus"
	"aura/internal/config"
	"aura/internal/logging"
)

// Bus topics consumed and produced by the intent core.
const (
	TopicUtterance          = "recognizer_loop:utterance"
	TopicUtteranceContext   = "recognizer_loop:context"
	TopicAudioOutputStart   = "recognizer_loop:audio_output_start"
	TopicAudioOutputEnd     = "recognizer_loop:audio_output_end"
	TopicRegisterVocab      = "register_vocab"
	TopicRegisterIntent     = "register_intent"
	TopicDetachIntent       = "detach_intent"
	TopicDetachSkill        = "detach_skill"
	TopicAddContext         = "add_context"
	TopicRemoveContext      = "remove_context"
	TopicClearContext       = "clear_context"
	TopicIntentFailure      = "complete_intent_failure"
	TopicConverseRequest    = "skill.converse.request"
	TopicConverseResponse   = "skill.converse.response"
	TopicFallbackRequest    = "skill.fallback.request"
	TopicFallbackResponse   = "skill.fallback.response"
	TopicSkillsLoaded       = "core.skills.loaded"
	TopicRecognitionFailed  = "core.speech.recognition.unknown"
	TopicWakeword           = "core.wakeword"
	TopicSpeechStop         = "core.audio.speech.stop"
	TopicResponseLatency    = "intent.service.response.latency"
	TopicSpeak              = "speak"
	TopicGenerate           = "core.api.generate"
	TopicGenerateResponse   = "core.api.generate.response"
	TopicSetSkillActive     = "skill.set_active"
	TopicSkillDeactivate    = "intent.service.skills.deactivate"
	TopicSkillDeactivateOth = "intent.service.skills.deactivate_others"
	TopicSkillActivate      = "intent.service.skills.activate"

	TopicGetIntent            = "intent.service.intent.get"
	TopicIntentReply          = "intent.service.intent.reply"
	TopicGetSkills            = "intent.service.skills.get"
	TopicSkillsReply          = "intent.service.skills.reply"
	TopicGetActiveSkills      = "intent.service.active_skills.get"
	TopicActiveSkillsReply    = "intent.service.active_skills.reply"
	TopicGetAdapt             = "intent.service.adapt.get"
	TopicAdaptReply           = "intent.service.adapt.reply"
	TopicGetAdaptManifest     = "intent.service.adapt.manifest.get"
	TopicAdaptManifest        = "intent.service.adapt.manifest"
	TopicGetVocabManifest     = "intent.service.adapt.vocab.manifest.get"
	TopicVocabManifest        = "intent.service.adapt.vocab.manifest"
	TopicGetPadatious         = "intent.service.padatious.get"
	TopicPadatiousReply       = "intent.service.padatious.reply"
	TopicGetPadManifest       = "intent.service.padatious.manifest.get"
	TopicPadManifest          = "intent.service.padatious.manifest"
	TopicGetPadEntities       = "intent.service.padatious.entities.manifest.get"
	TopicPadEntitiesManifest  = "intent.service.padatious.entities.manifest"
)

// Params collects everything a Service needs. Bus and Adapt are required;
// Padatious and QA may be nil, in which case their tiers simply never match
// (the platform runs degraded rather than not at all).
type Params struct {
	Bus       bus.Bus
	Config    *config.Config
	Adapt     AdaptEngine
	Padatious PadatiousEngine
	QA        QAEngine
	Logger    *zap.Logger
}

// Service wires the dispatch pipeline, the active-skill registry, the context
// manager and all registration/introspection handlers onto the bus.
type Service struct {
	bus       bus.Bus
	adapt     AdaptEngine
	padatious PadatiousEngine
	qa        QAEngine

	log  *zap.Logger
	plog *zap.Logger // pipeline
	clog *zap.Logger // converse
	qlog *zap.Logger // queries

	registry *ActiveSkillRegistry
	speech   *SpeechGate

	// cfgMu guards the hot-reloadable knobs below.
	cfgMu            sync.RWMutex
	defaultLang      string
	converseTimeoutD time.Duration
	requestTimeoutD  time.Duration
	padThresholds    config.PadatiousConfig

	namesMu    sync.RWMutex
	skillNames map[string]string

	vocabMu         sync.Mutex
	registeredVocab []map[string]any

	subs []bus.Subscription
}

// New constructs the service and subscribes every handler.
func New(p Params) (*Service, error) {
	if p.Bus == nil {
		return nil, errors.New("intent: bus is required")
	}
	if p.Adapt == nil {
		return nil, errors.New("intent: adapt engine is required")
	}
	cfg := p.Config
	if cfg == nil {
		cfg = config.Default()
	}
	root := p.Logger
	if root == nil {
		root = zap.NewNop()
	}

	s := &Service{
		bus:        p.Bus,
		adapt:      p.Adapt,
		padatious:  p.Padatious,
		qa:         p.QA,
		log:        root,
		plog:       logging.Named(root, logging.CategoryPipeline),
		clog:       logging.Named(root, logging.CategoryConverse),
		qlog:       logging.Named(root, logging.CategoryQuery),
		registry:   NewActiveSkillRegistry(logging.Named(root, logging.CategoryConverse)),
		skillNames: map[string]string{},
	}
	s.speech = NewSpeechGate()
	s.ApplyConfig(cfg)
	s.subscribe()
	return s, nil
}

// ApplyConfig installs the hot-reloadable knobs from a config snapshot. Safe
// to call while utterances are resolving.
func (s *Service) ApplyConfig(cfg *config.Config) {
	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()
	s.defaultLang = cfg.Lang
	s.converseTimeoutD = cfg.ConverseTimeout()
	s.requestTimeoutD = cfg.Converse.RequestTimeout
	s.padThresholds = cfg.Padatious
}

// Close unsubscribes every handler. The bus itself is owned by the caller.
func (s *Service) Close() {
	for _, sub := range s.subs {
		s.bus.Unsubscribe(sub)
	}
	s.subs = nil
}

// Registry exposes the active-skill registry for embedding deployments.
func (s *Service) Registry() *ActiveSkillRegistry { return s.registry }

func (s *Service) subscribe() {
	on := func(topic string, h bus.Handler) {
		s.subs = append(s.subs, s.bus.Subscribe(topic, h))
	}

	on(TopicUtterance, s.handleUtterance)
	on(TopicRegisterVocab, s.handleRegisterVocab)
	on(TopicRegisterIntent, s.handleRegisterIntent)
	on(TopicDetachIntent, s.handleDetachIntent)
	on(TopicDetachSkill, s.handleDetachSkill)

	on(TopicAddContext, s.handleAddContext)
	on(TopicRemoveContext, s.handleRemoveContext)
	on(TopicClearContext, s.handleClearContext)

	on(TopicSkillsLoaded, s.handleSkillsLoaded)
	on(TopicRecognitionFailed, s.handleRecognitionFailed)
	on(TopicWakeword, s.handleWakeword)
	on(TopicResponseLatency, s.handleResponseLatency)
	on(TopicGenerate, s.handleGenerate)
	on(TopicUtteranceContext, s.handleUtteranceContext)

	on(TopicAudioOutputStart, func(*bus.Message) { s.speech.SetSpeaking(true) })
	on(TopicAudioOutputEnd, func(*bus.Message) { s.speech.SetSpeaking(false) })

	on(TopicSkillDeactivate, s.handleDeactivateSkill)
	on(TopicSkillDeactivateOth, s.handleDeactivateOthers)
	on(TopicSkillActivate, s.handleActivateSkill)

	on(TopicGetIntent, s.handleGetIntent)
	on(TopicGetSkills, s.handleGetSkills)
	on(TopicGetActiveSkills, s.handleGetActiveSkills)
	on(TopicGetAdapt, s.handleGetAdapt)
	on(TopicGetAdaptManifest, s.handleAdaptManifest)
	on(TopicGetVocabManifest, s.handleVocabManifest)
	on(TopicGetPadatious, s.handleGetPadatious)
	on(TopicGetPadManifest, s.handlePadatiousManifest)
	on(TopicGetPadEntities, s.handleEntityManifest)
}

// messageLang derives the effective language for one event: the event's own
// code lower-cased, else the configured default.
func (s *Service) messageLang(msg *bus.Message) string {
	if lang, ok := msg.Data["lang"].(string); ok && lang != "" {
		return normalizeLang(lang)
	}
	return s.defaultLangCode()
}

func (s *Service) defaultLangCode() string {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.defaultLang
}

func (s *Service) converseTimeout() time.Duration {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.converseTimeoutD
}

func (s *Service) requestTimeout() time.Duration {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.requestTimeoutD
}

func (s *Service) thresholds() config.PadatiousConfig {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.padThresholds
}

// publish emits msg, logging failures centrally instead of at each call site.
func (s *Service) publish(msg *bus.Message) {
	if err := s.bus.Publish(msg); err != nil {
		s.log.Error("bus publish failed", zap.String("type", msg.Type), zap.Error(err))
	}
}
