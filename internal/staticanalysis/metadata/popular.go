package metadata

// popularPackages are frequently typosquatted npm package names.
var popularPackages = []string{
	"express", "react", "react-dom", "angular", "vue", "lodash", "axios",
	"moment", "webpack", "babel", "typescript", "eslint", "prettier",
	"jest", "mocha", "chai", "next", "nuxt", "svelte",
	"underscore", "jquery", "bootstrap", "tailwindcss",
	"commander", "chalk", "inquirer", "yargs", "minimist",
	"request", "node-fetch", "got", "superagent",
	"mongoose", "sequelize", "knex", "prisma",
	"socket.io", "ws", "rxjs", "ramda",
	"debug", "dotenv", "uuid", "nanoid",
	"cross-env", "colors", "async", "bluebird", "body-parser",
	"classnames", "glob", "rimraf", "mkdirp", "semver", "fs-extra",
	"core-js", "tslib", "redux", "electron", "puppeteer", "discord.js",
	"ethers", "web3", "coffee-script", "nodemon", "esbuild", "vite",
	"@angular/core", "@angular/cli", "@types/node",
	"@babel/core", "@babel/preset-env",
	"@nestjs/core", "@nestjs/common",
	"@testing-library/react", "@testing-library/jest-dom",
}
