package password

// commonPasswordList is the built-in deny list, matched exactly and
// case-insensitively. Deployments with their own breach corpus pass it to
// [NewPolicy] instead.
var commonPasswordList = []string{
	"password", "password1", "password123", "passw0rd", "p@ssw0rd",
	"123456", "1234567", "12345678", "123456789", "1234567890",
	"qwerty", "qwerty123", "qwertyuiop", "asdfghjkl", "zxcvbnm",
	"abc123", "abcd1234", "iloveyou", "letmein", "welcome",
	"welcome1", "admin", "admin123", "root", "toor",
	"monkey", "dragon", "sunshine", "princess", "football",
	"baseball", "superman", "batman", "trustno1", "master",
	"shadow", "michael", "jennifer", "jordan23", "starwars",
	"whatever", "secret", "freedom", "hello123", "charlie",
	"donald", "hunter2", "696969", "111111", "000000",
}
