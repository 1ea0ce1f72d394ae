package ops

import (
	"strings"
	"time"

	"main/internal/calendar"
	"main/internal/model/enum"
	"main/internal/sim"
	"main/internal/store"
	"main/internal/subscriber"

	"github.com/spf13/viper"
	"github.com/yanun0323/errors"
)

// FileConfig mirrors the YAML config layout. Everything here is primitive
// so viper can decode it; Load resolves it into domain types.
type FileConfig struct {
	Sim        SimConfig        `mapstructure:"sim"`
	Calendar   CalendarConfig   `mapstructure:"calendar"`
	Adapters   []AdapterConfig  `mapstructure:"adapters"`
	Formula    FormulaConfig    `mapstructure:"formula"`
	Dist       DistConfig       `mapstructure:"dist"`
	Pub        PubConfig        `mapstructure:"pub"`
	Store      StoreConfig      `mapstructure:"store"`
	Supervisor SupervisorConfig `mapstructure:"supervisor"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

type SimConfig struct {
	Instruments []InstrumentConfig `mapstructure:"instruments"`
	Correlation [][]float64        `mapstructure:"correlation"`
	Sessions    []SessionConfig    `mapstructure:"sessions"`
	Regimes     RegimesConfig      `mapstructure:"regimes"`
	WeekendGap  GapConfig          `mapstructure:"weekendGap"`
	Macro       MacroConfig        `mapstructure:"macro"`
	Shock       ShockConfig        `mapstructure:"shock"`
	Events      []EventConfig      `mapstructure:"events"`
	IntervalMs  int                `mapstructure:"intervalMs"`
	Seed        int64              `mapstructure:"seed"`
}

type InstrumentConfig struct {
	Symbol           string  `mapstructure:"symbol"`
	InitialPrice     float64 `mapstructure:"initialPrice"`
	InitialSigma     float64 `mapstructure:"initialSigma"`
	DriftAnnual      float64 `mapstructure:"driftAnnual"`
	Engine           string  `mapstructure:"engine"`
	Omega            float64 `mapstructure:"omega"`
	Alpha            float64 `mapstructure:"alpha"`
	Beta             float64 `mapstructure:"beta"`
	Asymmetry        float64 `mapstructure:"asymmetry"`
	SpreadBase       float64 `mapstructure:"spreadBase"`
	JumpLambda       float64 `mapstructure:"jumpLambda"`
	JumpMean         float64 `mapstructure:"jumpMean"`
	JumpVol          float64 `mapstructure:"jumpVol"`
	MeanReversion    bool    `mapstructure:"meanReversion"`
	Kappa            float64 `mapstructure:"kappa"`
	Theta            float64 `mapstructure:"theta"`
	MacroSensitivity float64 `mapstructure:"macroSensitivity"`
	BaseTickVolume   float64 `mapstructure:"baseTickVolume"`
}

type SessionConfig struct {
	FromHour int     `mapstructure:"fromHour"`
	ToHour   int     `mapstructure:"toHour"`
	VolScale float64 `mapstructure:"volScale"`
}

type RegimeDefConfig struct {
	VolScale     float64 `mapstructure:"volScale"`
	MinSteps     int     `mapstructure:"minSteps"`
	SwitchChance float64 `mapstructure:"switchChance"`
}

type RegimesConfig struct {
	Low    RegimeDefConfig `mapstructure:"low"`
	Mid    RegimeDefConfig `mapstructure:"mid"`
	High   RegimeDefConfig `mapstructure:"high"`
	Markov [][]float64     `mapstructure:"markov"`
}

type GapConfig struct {
	Mean float64 `mapstructure:"mean"`
	Vol  float64 `mapstructure:"vol"`
}

type MacroConfig struct {
	DriftAdjust float64 `mapstructure:"driftAdjust"`
	VolAdjust   float64 `mapstructure:"volAdjust"`
}

type ShockBandConfig struct {
	Chance   float64 `mapstructure:"chance"`
	MinLevel float64 `mapstructure:"minLevel"`
	MaxLevel float64 `mapstructure:"maxLevel"`
	Duration int     `mapstructure:"duration"`
}

type ShockConfig struct {
	Small  ShockBandConfig `mapstructure:"small"`
	Medium ShockBandConfig `mapstructure:"medium"`
	Big    ShockBandConfig `mapstructure:"big"`
	Decay  float64         `mapstructure:"decay"`
}

type EventConfig struct {
	Name   string  `mapstructure:"name"`
	Symbol string  `mapstructure:"symbol"`
	At     string  `mapstructure:"at"` // RFC 3339
	Mean   float64 `mapstructure:"mean"`
	Vol    float64 `mapstructure:"vol"`
}

type CalendarConfig struct {
	Location string          `mapstructure:"location"`
	Holidays []HolidayConfig `mapstructure:"holidays"`
}

type HolidayConfig struct {
	Name string `mapstructure:"name"`
	From string `mapstructure:"from"` // RFC 3339
	To   string `mapstructure:"to"`
}

type AdapterConfig struct {
	Kind       string   `mapstructure:"kind"`
	Platform   string   `mapstructure:"platform"`
	Addr       string   `mapstructure:"addr"`
	IntervalMs int      `mapstructure:"intervalMs"`
	MaxUpdates int64    `mapstructure:"maxUpdates"`
	Symbols    []string `mapstructure:"symbols"`
}

type FormulaConfig struct {
	Path   string `mapstructure:"path"`
	PollMs int    `mapstructure:"pollMs"`
}

type DistConfig struct {
	TCPAddr  string `mapstructure:"tcpAddr"`
	WSAddr   string `mapstructure:"wsAddr"`
	MaxConns int    `mapstructure:"maxConns"`
}

type PubConfig struct {
	QueueSize int            `mapstructure:"queueSize"`
	Kafka     KafkaPubConfig `mapstructure:"kafka"`
	Redis     RedisPubConfig `mapstructure:"redis"`
}

type KafkaPubConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type RedisPubConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type StoreConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslMode"`
}

type SupervisorConfig struct {
	IntervalMs  int     `mapstructure:"intervalMs"`
	WindowMs    int     `mapstructure:"windowMs"`
	CooldownMs  int     `mapstructure:"cooldownMs"`
	MinAttempts uint32  `mapstructure:"minAttempts"`
	FailureRate float64 `mapstructure:"failureRate"`
}

type MetricsConfig struct {
	LogIntervalMs int `mapstructure:"logIntervalMs"`
}

// Loaded is the resolved configuration ready for wiring.
type Loaded struct {
	Sim        sim.Config
	Calendar   *calendar.Calendar
	Adapters   []subscriber.Config
	Formula    FormulaConfig
	Dist       DistConfig
	Pub        PubConfig
	StoreOpt   store.Option
	UseStore   bool
	Supervisor subscriber.BreakerConfig
	SupTick    time.Duration
	MetricsLog time.Duration
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(path)

	v.SetDefault("sim.intervalMs", 1000)
	v.SetDefault("dist.tcpAddr", ":5001")
	v.SetDefault("dist.maxConns", 1024)
	v.SetDefault("pub.queueSize", 4096)
	v.SetDefault("formula.pollMs", 2000)
	v.SetDefault("supervisor.intervalMs", 5000)
	v.SetDefault("metrics.logIntervalMs", 30000)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads and resolves the config file.
func Load(path string) (Loaded, error) {
	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		return Loaded{}, errors.Wrap(err, "read config").With("path", path)
	}
	return resolve(v)
}

func resolve(v *viper.Viper) (Loaded, error) {
	var file FileConfig
	if err := v.Unmarshal(&file); err != nil {
		return Loaded{}, errors.Wrap(err, "decode config")
	}

	simCfg, err := file.Sim.resolve()
	if err != nil {
		return Loaded{}, err
	}
	cal, err := file.Calendar.resolve()
	if err != nil {
		return Loaded{}, err
	}

	adapters := make([]subscriber.Config, 0, len(file.Adapters))
	for _, a := range file.Adapters {
		if a.Kind == "" || a.Platform == "" {
			return Loaded{}, errors.Errorf("adapter entry missing kind or platform: %+v", a)
		}
		adapters = append(adapters, subscriber.Config{
			Kind:       a.Kind,
			Platform:   a.Platform,
			Addr:       a.Addr,
			Interval:   time.Duration(a.IntervalMs) * time.Millisecond,
			MaxUpdates: a.MaxUpdates,
			Symbols:    a.Symbols,
		})
	}

	return Loaded{
		Sim:      simCfg,
		Calendar: cal,
		Adapters: adapters,
		Formula:  file.Formula,
		Dist:     file.Dist,
		Pub:      file.Pub,
		StoreOpt: store.Option{
			Host:     file.Store.Host,
			Port:     file.Store.Port,
			User:     file.Store.User,
			Password: file.Store.Password,
			Database: file.Store.Database,
			SSLMode:  file.Store.SSLMode,
		},
		UseStore: file.Store.Enabled,
		Supervisor: subscriber.BreakerConfig{
			Window:      time.Duration(file.Supervisor.WindowMs) * time.Millisecond,
			Cooldown:    time.Duration(file.Supervisor.CooldownMs) * time.Millisecond,
			MinAttempts: file.Supervisor.MinAttempts,
			FailureRate: file.Supervisor.FailureRate,
		},
		SupTick:    time.Duration(file.Supervisor.IntervalMs) * time.Millisecond,
		MetricsLog: time.Duration(file.Metrics.LogIntervalMs) * time.Millisecond,
	}, nil
}

func (c SimConfig) resolve() (sim.Config, error) {
	instruments := make([]sim.InstrumentConfig, 0, len(c.Instruments))
	for _, inst := range c.Instruments {
		instruments = append(instruments, sim.InstrumentConfig{
			Symbol:       inst.Symbol,
			InitialPrice: inst.InitialPrice,
			InitialSigma: inst.InitialSigma,
			DriftAnnual:  inst.DriftAnnual,
			Engine:       enum.ParseEngineKind(inst.Engine),
			Garch: sim.GarchParams{
				Omega:     inst.Omega,
				Alpha:     inst.Alpha,
				Beta:      inst.Beta,
				Asymmetry: inst.Asymmetry,
			},
			SpreadBase: inst.SpreadBase,
			Jump: sim.JumpParams{
				Lambda: inst.JumpLambda,
				Mean:   inst.JumpMean,
				Vol:    inst.JumpVol,
			},
			MeanReversion: sim.MeanReversionParams{
				Enabled: inst.MeanReversion,
				Kappa:   inst.Kappa,
				Theta:   inst.Theta,
			},
			MacroSensitivity: inst.MacroSensitivity,
			BaseTickVolume:   inst.BaseTickVolume,
		})
	}

	sessions := make([]sim.SessionWindow, 0, len(c.Sessions))
	for _, s := range c.Sessions {
		sessions = append(sessions, sim.SessionWindow{
			FromHour: s.FromHour,
			ToHour:   s.ToHour,
			VolScale: s.VolScale,
		})
	}

	events := make([]sim.EventShock, 0, len(c.Events))
	for _, e := range c.Events {
		at, err := time.Parse(time.RFC3339, e.At)
		if err != nil {
			return sim.Config{}, errors.Wrap(err, "parse event time").With("event", e.Name)
		}
		events = append(events, sim.EventShock{
			Name:   e.Name,
			Symbol: e.Symbol,
			At:     at,
			Mean:   e.Mean,
			Vol:    e.Vol,
		})
	}

	cfg := sim.Config{
		Instruments: instruments,
		Correlation: c.Correlation,
		Sessions:    sessions,
		Regimes: sim.RegimeConfig{
			Low:    sim.RegimeDef(c.Regimes.Low),
			Mid:    sim.RegimeDef(c.Regimes.Mid),
			High:   sim.RegimeDef(c.Regimes.High),
			Markov: c.Regimes.Markov,
		},
		WeekendGap: sim.GapConfig(c.WeekendGap),
		Macro:      sim.MacroConfig(c.Macro),
		Shock: sim.ShockConfig{
			Small:  sim.ShockBand(c.Shock.Small),
			Medium: sim.ShockBand(c.Shock.Medium),
			Big:    sim.ShockBand(c.Shock.Big),
			Decay:  c.Shock.Decay,
		},
		Events:   events,
		Interval: time.Duration(c.IntervalMs) * time.Millisecond,
		Seed:     c.Seed,
	}
	if err := cfg.Validate(); err != nil {
		return sim.Config{}, err
	}
	return cfg, nil
}

func (c CalendarConfig) resolve() (*calendar.Calendar, error) {
	loc := time.UTC
	if c.Location != "" {
		parsed, err := time.LoadLocation(c.Location)
		if err != nil {
			return nil, errors.Wrap(err, "load calendar location").With("location", c.Location)
		}
		loc = parsed
	}

	windows := make([]calendar.Window, 0, len(c.Holidays))
	for _, h := range c.Holidays {
		from, err := time.Parse(time.RFC3339, h.From)
		if err != nil {
			return nil, errors.Wrap(err, "parse holiday from").With("holiday", h.Name)
		}
		to, err := time.Parse(time.RFC3339, h.To)
		if err != nil {
			return nil, errors.Wrap(err, "parse holiday to").With("holiday", h.Name)
		}
		windows = append(windows, calendar.Window{Name: h.Name, From: from, To: to})
	}
	return calendar.New(windows, loc), nil
}
