package catalog

var builtinVoices = []VoiceProfile{
	{ID: "narrator-warm", Name: "Warm Narrator", Description: "Friendly storyteller with a calm, inviting delivery", Gender: "female", Accent: "american", Tone: "warm", Category: "narrator", ProviderVoiceID: "21m00Tcm4TlvDq8ikWAM"},
	{ID: "narrator-neutral", Name: "Neutral Narrator", Description: "Even, clear reading suited to long chapters", Gender: "male", Accent: "american", Tone: "neutral", Category: "narrator", ProviderVoiceID: "pNInz6obpgDQGcFmaJgB"},
	{ID: "narrator-british", Name: "British Narrator", Description: "Measured delivery with a received pronunciation accent", Gender: "male", Accent: "british", Tone: "refined", Category: "narrator", ProviderVoiceID: "onwK4e9ZLuTAKqWW03F9"},
	{ID: "dramatic-male", Name: "Dramatic Male", Description: "Deep, intense voice for action and suspense", Gender: "male", Accent: "american", Tone: "dramatic", Category: "dramatic", ProviderVoiceID: "VR6AewLTigWG4xSOukaG"},
	{ID: "dramatic-female", Name: "Dramatic Female", Description: "Expressive, emotional delivery for high stakes scenes", Gender: "female", Accent: "american", Tone: "dramatic", Category: "dramatic", ProviderVoiceID: "AZnzlk1XvdvUeBnXmlld"},
	{ID: "mysterious", Name: "Mysterious", Description: "Hushed, breathy voice for thrillers and horror", Gender: "female", Accent: "american", Tone: "mysterious", Category: "dramatic", ProviderVoiceID: "EXAVITQu4vr4xnSDxMaL"},
	{ID: "young-female", Name: "Young Female", Description: "Bright, youthful character voice", Gender: "female", Accent: "american", Tone: "energetic", Category: "character", ProviderVoiceID: "MF3mGyEYCl7XYWbV9V6O"},
	{ID: "young-male", Name: "Young Male", Description: "Casual, upbeat character voice", Gender: "male", Accent: "american", Tone: "casual", Category: "character", ProviderVoiceID: "TxGEqnHWrfWFTfGW9XjX"},
	{ID: "elder-sage", Name: "Elder Sage", Description: "Slow, gravelly voice of experience", Gender: "male", Accent: "american", Tone: "wise", Category: "character", ProviderVoiceID: "yoZ06aMxZJJ28mfd3POQ"},
	{ID: "cheerful", Name: "Cheerful", Description: "Playful, animated voice for light fiction", Gender: "male", Accent: "american", Tone: "cheerful", Category: "character", ProviderVoiceID: "ErXwobaYiN019PkySvjV"},
}

var builtinMusic = []MusicTrack{
	{ID: "none", Name: "No Music", Mood: "none", Description: "Narration only"},
	{ID: "ambient-calm", Name: "Calm Ambience", Mood: "calm", Description: "Soft pads for reflective passages"},
	{ID: "romantic-piano", Name: "Romantic Piano", Mood: "romantic", Description: "Gentle solo piano"},
	{ID: "epic-orchestral", Name: "Epic Orchestral", Mood: "epic", Description: "Full orchestra for battles and climaxes"},
	{ID: "adventure", Name: "Adventure", Mood: "epic", Description: "Driving strings and percussion"},
	{ID: "suspense", Name: "Suspense", Mood: "tense", Description: "Low drones and pulses"},
	{ID: "dark-mystery", Name: "Dark Mystery", Mood: "tense", Description: "Sparse, unsettling textures"},
	{ID: "melancholy", Name: "Melancholy", Mood: "sad", Description: "Slow strings for loss and longing"},
	{ID: "fantasy-realm", Name: "Fantasy Realm", Mood: "whimsical", Description: "Harp and woodwinds"},
}

var builtinEffects = []SoundEffect{
	{ID: "door-creak", Name: "Door Creak", Category: "household", Description: "An old wooden door swinging open"},
	{ID: "footsteps", Name: "Footsteps", Category: "household", Description: "Steady footsteps on a hard floor"},
	{ID: "clock-ticking", Name: "Clock Ticking", Category: "household", Description: "A mantel clock"},
	{ID: "thunder", Name: "Thunder", Category: "weather", Description: "A distant thunder roll"},
	{ID: "rain", Name: "Rain", Category: "weather", Description: "Steady rain on a window"},
	{ID: "wind", Name: "Wind", Category: "weather", Description: "Howling wind"},
	{ID: "birds", Name: "Birdsong", Category: "nature", Description: "Morning birds in a forest"},
	{ID: "fire-crackle", Name: "Crackling Fire", Category: "nature", Description: "A campfire"},
	{ID: "sword-clash", Name: "Sword Clash", Category: "action", Description: "Two blades meeting"},
	{ID: "explosion", Name: "Explosion", Category: "action", Description: "A distant blast"},
	{ID: "heartbeat", Name: "Heartbeat", Category: "ambient", Description: "A slow heartbeat"},
	{ID: "crowd-murmur", Name: "Crowd Murmur", Category: "ambient", Description: "A busy tavern"},
}
