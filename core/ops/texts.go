package ops

// Labels are the reply keyboard button captions.
type Labels struct {
	Status     string
	Screenshot string
	Sleep      string
	Hibernate  string
	Shutdown   string
	Restart    string
}

// Texts holds every user-visible string. Format verbs are noted per field.
type Texts struct {
	Labels Labels

	Welcome      string
	Executing    string
	RetryRequest string
	Unauthorized string // %d user id
	Error        string

	Status string // %s host, %s processor, %d days, %d hours, %d minutes, %d seconds, %.1f used, %.1f total

	ScreenshotTaken   string
	ScreenshotMonitor string // %d index, %d count
	NoScreens         string
	FileTooLarge      string // %d index, %.1f size MB, %.0f limit MB

	Sleep     string
	Hibernate string
	Shutdown  string
	Restart   string
}

// DefaultTexts returns the built-in English strings.
func DefaultTexts() Texts {
	return Texts{
		Labels: Labels{
			Status:     "📊 Status",
			Screenshot: "📸 Screenshot",
			Sleep:      "😴 Sleep",
			Hibernate:  "💤 Hibernate",
			Shutdown:   "🔌 Shutdown",
			Restart:    "🔄 Restart",
		},

		Welcome:      "👋 Remote control is ready. Choose an action:",
		Executing:    "⏳ Executing command...",
		RetryRequest: "⌛ This message is too old to run. Please send the command again.",
		Unauthorized: "⛔ You are not authorized to control this computer.\nYour user ID: <code>%d</code>",
		Error:        "❌ Something went wrong. Details were written to the host log.",

		Status: "🖥 <b>%s</b>\n" +
			"CPU: %s\n" +
			"Uptime: %dd %dh %dm %ds\n" +
			"RAM: %.1f / %.1f GB",

		ScreenshotTaken:   "📸 Screenshot taken",
		ScreenshotMonitor: "📸 Screen %d of %d",
		NoScreens:         "❌ No screens found",
		FileTooLarge:      "⚠️ Screen %d is too large to send: %.1f MB (limit %.0f MB)",

		Sleep:     "😴 Putting the computer to sleep...",
		Hibernate: "💤 Hibernating the computer...",
		Shutdown:  "🔌 Shutting down the computer...",
		Restart:   "🔄 Restarting the computer...",
	}
}

// WithLabels returns t with every non-empty label in l applied.
func (t Texts) WithLabels(l Labels) Texts {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&t.Labels.Status, l.Status)
	set(&t.Labels.Screenshot, l.Screenshot)
	set(&t.Labels.Sleep, l.Sleep)
	set(&t.Labels.Hibernate, l.Hibernate)
	set(&t.Labels.Shutdown, l.Shutdown)
	set(&t.Labels.Restart, l.Restart)
	return t
}
