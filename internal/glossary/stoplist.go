package glossary

// stopwords are generic words that never need a glossary entry: the model
// translates them consistently without help.
var stopwords = []string{
	// titles and roles
	"magic", "sword", "guild", "king", "queen", "lord", "lady", "master", "knight",
	"warrior", "mage", "priest", "merchant", "guard", "soldier", "captain", "general",
	"princess", "prince", "duke", "count", "baron", "noble", "commoner", "peasant",
	"servant", "butler", "maid", "chef", "cook", "blacksmith", "farmer", "hunter",
	"adventurer", "hero", "villain", "enemy", "ally", "friend", "student", "teacher",

	// locations
	"inn", "tavern", "shop", "market", "street", "road", "path", "forest", "mountain",
	"river", "lake", "sea", "ocean", "village", "town", "city", "kingdom", "empire",
	"castle", "palace", "tower", "wall", "gate", "door", "window", "room", "hall",
	"church", "temple", "shrine", "school", "academy", "library", "hospital", "prison",
	"house", "home", "building", "bridge", "plaza", "square", "park", "garden",

	// items
	"weapon", "armor", "shield", "bow", "arrow", "spear", "axe", "dagger", "staff",
	"potion", "scroll", "book", "letter", "map", "key", "coin", "gold", "silver",
	"bronze", "copper", "iron", "steel", "wood", "stone", "leather", "cloth",
	"food", "water", "wine", "beer", "bread", "meat", "fruit", "vegetable",

	// creatures
	"monster", "demon", "devil", "angel", "god", "goddess", "spirit", "ghost", "soul",
	"dragon", "wolf", "bear", "eagle", "horse", "dog", "cat", "bird", "fish",
	"orc", "elf", "dwarf", "human", "beast", "creature", "animal",

	// elements and magic
	"fire", "earth", "air", "wind", "ice", "lightning", "light", "dark",
	"flame", "smoke", "steam", "mist", "fog", "rain", "snow", "storm", "thunder",
	"power", "strength", "speed", "skill", "ability", "technique", "method", "way",
	"spell", "enchantment", "curse", "blessing", "ritual", "ceremony", "prayer",

	// time
	"day", "night", "morning", "afternoon", "evening", "dawn", "dusk", "hour",
	"minute", "second", "week", "month", "year", "season", "spring", "summer",
	"autumn", "winter", "today", "tomorrow", "yesterday", "past", "future",

	// colours and sizes
	"red", "blue", "green", "yellow", "orange", "purple", "pink", "brown",
	"black", "white", "gray", "grey", "golden",
	"bright", "dim", "small", "large", "big", "tiny", "huge", "long", "short",

	// actions
	"fight", "battle", "war", "peace", "attack", "defend", "protect", "save",
	"help", "kill", "die", "live", "born", "grow", "learn", "teach", "study",
	"work", "play", "sleep", "eat", "drink", "walk", "run", "fly", "swim",

	// body and clothing
	"head", "face", "eye", "eyes", "ear", "nose", "mouth", "hand", "hands",
	"arm", "arms", "leg", "legs", "foot", "feet", "body", "heart", "mind",
	"robe", "dress", "shirt", "pants", "shoes", "hat", "cloak", "cape",

	// family
	"father", "mother", "son", "daughter", "brother", "sister", "family",
	"parent", "child", "children", "husband", "wife", "lover",

	// numbers
	"one", "two", "three", "four", "five", "six", "seven", "eight", "nine", "ten",
	"first", "third", "fourth", "fifth", "hundred", "thousand", "million",
}

func defaultStoplist() map[string]struct{} {
	m := make(map[string]struct{}, len(stopwords))
	for _, w := range stopwords {
		m[BaseTerm(w)] = struct{}{}
	}
	return m
}

// IsStopword reports whether the base term of term is on the default stoplist.
func IsStopword(term string) bool {
	_, ok := defaultStops[BaseTerm(term)]
	return ok
}

var defaultStops = defaultStoplist()
